package restart

import (
	"context"
	"strings"
)

// Command runs a user-supplied command. Every "{name}" in Argv is replaced with the tunnel name.
type Command struct {
	Argv []string
}

func (r *Command) Restart(ctx context.Context, name string) error {
	argv := make([]string, len(r.Argv))
	for i, arg := range r.Argv {
		argv[i] = strings.ReplaceAll(arg, "{name}", name)
	}
	return run(ctx, argv...)
}
