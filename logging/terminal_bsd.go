//go:build freebsd || netbsd || openbsd || dragonfly

package logging

import "golang.org/x/sys/unix"

const ioctlGetTermios = unix.TIOCGETA
