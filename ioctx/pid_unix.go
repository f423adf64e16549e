//go:build unix

package ioctx

import (
	"golang.org/x/sys/unix"
)

func getpid() int {
	return unix.Getpid()
}
