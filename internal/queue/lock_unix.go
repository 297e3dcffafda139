//go:build unix

package queue

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hestia-iot/ntnrelay/internal/domain"
)

const lockPollInterval = 10 * time.Millisecond

// fileLock is an advisory flock held on a dedicated lock file. The journal
// itself is replaced on compaction, so it cannot carry the lock.
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

// acquire polls a non-blocking exclusive flock until deadline.
func (l *fileLock) acquire(deadline time.Time) error {
	for {
		err := unix.Flock(int(l.f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			return fmt.Errorf("flock %s: %w", l.f.Name(), err)
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: flock %s held by another process", domain.ErrLockTimeout, l.f.Name())
		}
		time.Sleep(lockPollInterval)
	}
}

func (l *fileLock) release() error {
	return unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
}

func (l *fileLock) close() error {
	return l.f.Close()
}
