//go:build !linux

package sdnotify

func Ready() (bool, error)          { return false, nil }
func Stopping() (bool, error)       { return false, nil }
func Status(s string) (bool, error) { return false, nil }
