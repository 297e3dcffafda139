package queue

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/hestia-iot/ntnrelay/internal/domain"
)

// Journal operations.
const (
	opEnqueue = "enqueue"
	opAttempt = "attempt"
	opRemove  = "remove"
)

// Removal reasons recorded with opRemove.
const (
	reasonCommit = "commit"
	reasonDrop   = "drop"
)

// record is one self-describing journal entry.
type record struct {
	Op       string            `cbor:"op"`
	ID       string            `cbor:"id,omitempty"`
	Item     *domain.QueueItem `cbor:"item,omitempty"`
	Attempts int               `cbor:"attempts,omitempty"`
	Reason   string            `cbor:"reason,omitempty"`
	At       time.Time         `cbor:"at"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("queue: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("queue: CBOR decoder initialization failed: " + err.Error())
	}
}

// state is the replayed content of a journal.
type state struct {
	order   []string
	items   map[string]domain.QueueItem
	records int
}

func newState() *state {
	return &state{items: make(map[string]domain.QueueItem)}
}

// apply folds one record into the state. Later records win for a given id.
func (s *state) apply(r record) {
	s.records++
	switch r.Op {
	case opEnqueue:
		if r.Item == nil {
			return
		}
		if _, ok := s.items[r.Item.ID]; !ok {
			s.order = append(s.order, r.Item.ID)
		}
		s.items[r.Item.ID] = *r.Item
	case opAttempt:
		it, ok := s.items[r.ID]
		if !ok {
			return
		}
		if r.Attempts > it.Attempts {
			it.Attempts = r.Attempts
		}
		s.items[r.ID] = it
	case opRemove:
		if _, ok := s.items[r.ID]; !ok {
			return
		}
		delete(s.items, r.ID)
		for i, id := range s.order {
			if id == r.ID {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
}

func (s *state) live() int { return len(s.order) }

// replay decodes data record by record. It returns the state and the
// number of bytes that decoded cleanly; anything past that is a torn tail.
func replay(data []byte) (*state, int, error) {
	s := newState()
	good := 0
	rest := data
	for len(rest) > 0 {
		var r record
		next, err := decMode.UnmarshalFirst(rest, &r)
		if err != nil {
			return s, good, fmt.Errorf("decode record at offset %d: %w", good, err)
		}
		good += len(rest) - len(next)
		rest = next
		s.apply(r)
	}
	return s, good, nil
}

func encodeRecord(r record) ([]byte, error) {
	return encMode.Marshal(r)
}

// appendRecord writes b to the journal with a single write and syncs it.
func appendRecord(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// rewrite atomically replaces the journal with one enqueue record per item.
// Uses write to temp file, then rename.
func rewrite(path string, items []domain.QueueItem, at time.Time) error {
	var buf bytes.Buffer
	enc := encMode.NewEncoder(&buf)
	for i := range items {
		it := items[i]
		if err := enc.Encode(record{Op: opEnqueue, Item: &it, At: at}); err != nil {
			return err
		}
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, &buf); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	return syncDir(filepath.Dir(path))
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return err
	}
	return nil
}
