package util

import (
	"errors"

	"github.com/coreos/go-systemd/v22/daemon"
)

// ErrNotifyUnsupported is returned by Notify when NOTIFY_SOCKET is not set.
var ErrNotifyUnsupported = errors.New("notify: NOTIFY_SOCKET not set")

// Notify sends state to the service manager (see sd_notify(3)).
func Notify(state string) error {
	ok, err := daemon.SdNotify(false, state)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotifyUnsupported
	}
	return nil
}
