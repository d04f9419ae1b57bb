//go:build !linux && !windows

package restart

// DefaultKind is the restarter used when none is configured.
// There is no service manager convention to rely on here, so restart.command must be given.
const DefaultKind = KindCommand
