//go:build unix

package service

import (
	"context"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

type fileLock struct {
	f *os.File
}

// acquireFileLock takes an exclusive flock on path, polling so the wait
// stays cancellable through ctx. flock locks are advisory and released
// by the kernel if the process dies, so a crashed deploy never wedges
// its group.
func acquireFileLock(ctx context.Context, path string) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &fileLock{f: f}, nil
		}
		if err != unix.EWOULDBLOCK {
			f.Close()
			return nil, err
		}
		select {
		case <-ctx.Done():
			f.Close()
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (fl *fileLock) Release() error {
	if fl == nil || fl.f == nil {
		return nil
	}
	if err := unix.Flock(int(fl.f.Fd()), unix.LOCK_UN); err != nil {
		fl.f.Close()
		return err
	}
	return fl.f.Close()
}
