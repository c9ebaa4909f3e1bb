//go:build !unix

package service

import "context"

type fileLock struct{}

// Without flock the in-process waiter queue is the only exclusion, which
// is still correct for a single daemon per host.
func acquireFileLock(ctx context.Context, path string) (*fileLock, error) {
	return &fileLock{}, nil
}

func (fl *fileLock) Release() error {
	return nil
}
