//go:build !unix

package ioctx

import (
	"os"
)

func getpid() int {
	return os.Getpid()
}
