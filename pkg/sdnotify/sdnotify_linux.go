//go:build linux

// Package sdnotify reports daemon lifecycle to systemd when running under
// a Type=notify unit. Outside systemd every call is a cheap no-op.
package sdnotify

import (
	"github.com/coreos/go-systemd/v22/daemon"
)

// Ready tells systemd that startup is complete.
// Reports whether a notification was actually sent.
func Ready() (bool, error) {
	return daemon.SdNotify(false, daemon.SdNotifyReady)
}

// Stopping tells systemd that shutdown has begun.
func Stopping() (bool, error) {
	return daemon.SdNotify(false, daemon.SdNotifyStopping)
}

// Status publishes a free-form status line visible in systemctl status.
func Status(s string) (bool, error) {
	return daemon.SdNotify(false, "STATUS="+s)
}
