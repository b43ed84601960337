// Package journal records daemon activity in a bolt database so operators
// can review what the blocker did and when.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"
)

// Event kinds.
const (
	KindCommand   = "command"
	KindReconcile = "reconcile"
)

var bucketEvents = []byte("events")

// Event is one journal entry.
type Event struct {
	Time   time.Time `json:"time"`
	Kind   string    `json:"kind"`
	Action string    `json:"action"`
	Site   string    `json:"site,omitempty"`
	Detail string    `json:"detail,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// Journal is an append-only activity log capped at max entries. Appends
// past the cap evict the oldest entries. A non-positive max disables the
// cap.
type Journal struct {
	db  *bbolt.DB
	max int
}

// Open opens (or creates) the journal database at path.
func Open(path string, max int) (*Journal, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEvents)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing journal %s: %w", path, err)
	}
	return &Journal{db: db, max: max}, nil
}

// Append stores one event, then evicts the oldest entries past the cap.
func (j *Journal) Append(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return j.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		if err := b.Put(key, data); err != nil {
			return err
		}
		if j.max > 0 {
			return evictOldest(b, j.max)
		}
		return nil
	})
}

// evictOldest deletes entries from the front until at most max remain.
func evictOldest(b *bbolt.Bucket, max int) error {
	count := 0
	c := b.Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		count++
	}
	c = b.Cursor()
	for k, _ := c.First(); k != nil && count > max; k, _ = c.Next() {
		if err := c.Delete(); err != nil {
			return err
		}
		count--
	}
	return nil
}

// Recent returns up to n events, newest first. Entries that fail to decode
// are skipped rather than failing the whole read.
func (j *Journal) Recent(n int) ([]Event, error) {
	out := make([]Event, 0)
	if n <= 0 {
		return out, nil
	}
	err := j.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketEvents).Cursor()
		for k, v := c.Last(); k != nil && len(out) < n; k, v = c.Prev() {
			var ev Event
			if err := json.Unmarshal(v, &ev); err != nil {
				continue
			}
			out = append(out, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Len returns the number of stored events.
func (j *Journal) Len() (int, error) {
	n := 0
	err := j.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEvents).ForEach(func(_, _ []byte) error {
			n++
			return nil
		})
	})
	return n, err
}

// Close releases the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
