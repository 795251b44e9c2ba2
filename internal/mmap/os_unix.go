//go:build unix

package mmap

import (
	"os"

	"golang.org/x/sys/unix"
)

func mapFile(f *os.File, size int) ([]byte, func() error, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}
	return data, func() error { return unix.Munmap(data) }, nil
}

func advise(data []byte, hint Hint) {
	advice := unix.MADV_SEQUENTIAL
	if hint == Random {
		advice = unix.MADV_RANDOM
	}
	_ = unix.Madvise(data, advice)
}
