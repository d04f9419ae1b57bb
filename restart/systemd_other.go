//go:build !linux

package restart

import (
	"errors"
)

func newSystemd(unit string) (Restarter, error) {
	return nil, errors.New("the systemd restarter is only available on linux")
}
