package dedup

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
)

// Journal is a Pebble-backed record of recently seen spot key hashes. It lets
// duplicate suppression survive a restart: without it, a redelivery arriving
// just after startup would always reach the store (harmless because of the
// upsert, but wasted work).
//
// Every operation is best-effort. A journal error degrades the deduplicator
// to memory-only behavior; it never blocks or fails the ingest path.
type Journal struct {
	db *pebble.DB
}

// OpenJournal opens (or creates) the journal database at path.
func OpenJournal(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("dedup: journal path is empty")
	}
	opts := &pebble.Options{}
	level := pebble.LevelOptions{
		FilterPolicy: bloom.FilterPolicy(10),
		FilterType:   pebble.TableFilter,
	}
	opts.Levels = make([]pebble.LevelOptions, 7)
	for i := range opts.Levels {
		opts.Levels[i] = level
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("dedup: open journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// SeenWithin reports whether hash was journaled within window of at.
func (j *Journal) SeenWithin(hash uint64, at time.Time, window time.Duration) bool {
	if j == nil || j.db == nil {
		return false
	}
	value, closer, err := j.db.Get(journalKey(hash))
	if err != nil {
		return false // not found or read error: treat as unseen
	}
	defer closer.Close()
	if len(value) < 8 {
		return false
	}
	last := time.Unix(int64(binary.LittleEndian.Uint64(value)), 0)
	age := at.Sub(last)
	if age < 0 {
		age = -age
	}
	return age < window
}

// Record journals the hash with its observation time.
func (j *Journal) Record(hash uint64, at time.Time) {
	if j == nil || j.db == nil {
		return
	}
	var value [8]byte
	binary.LittleEndian.PutUint64(value[:], uint64(at.Unix()))
	if err := j.db.Set(journalKey(hash), value[:], pebble.NoSync); err != nil {
		log.Printf("dedup: journal write failed: %v", err)
	}
}

// Sweep deletes journal entries older than the window. Called periodically
// from the deduplicator's cleanup loop.
func (j *Journal) Sweep(now time.Time, window time.Duration) {
	if j == nil || j.db == nil || window <= 0 {
		return
	}
	cutoff := now.Add(-window).Unix()
	iter, err := j.db.NewIter(nil)
	if err != nil {
		log.Printf("dedup: journal sweep iterator failed: %v", err)
		return
	}
	defer iter.Close()

	batch := j.db.NewBatch()
	for iter.First(); iter.Valid(); iter.Next() {
		value := iter.Value()
		if len(value) < 8 {
			continue
		}
		if int64(binary.LittleEndian.Uint64(value)) < cutoff {
			_ = batch.Delete(append([]byte(nil), iter.Key()...), nil)
		}
	}
	if err := batch.Commit(pebble.NoSync); err != nil {
		log.Printf("dedup: journal sweep commit failed: %v", err)
	}
}

// Close flushes and closes the journal database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func journalKey(hash uint64) []byte {
	var key [8]byte
	binary.LittleEndian.PutUint64(key[:], hash)
	return key[:]
}
