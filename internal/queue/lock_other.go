//go:build !unix

package queue

import (
	"os"
	"time"
)

// fileLock on platforms without flock only guards the current process.
type fileLock struct {
	f *os.File
}

func openFileLock(path string) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileLock{f: f}, nil
}

func (l *fileLock) acquire(deadline time.Time) error { return nil }

func (l *fileLock) release() error { return nil }

func (l *fileLock) close() error { return l.f.Close() }
