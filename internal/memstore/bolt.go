// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

// compile-time interface assertion.
var _ Backend = (*Bolt)(nil)

const (
	// bucketLatest holds one entry per Category/Key pair, overwritten on
	// repeat Append calls, keyed by "<category>\x00<key>".
	bucketLatest = "latest"

	// bucketLog is an append-only sequence of every record ever written,
	// keyed by an 8-byte big-endian monotonic sequence number. All reads
	// this bucket in key order.
	bucketLog = "log"
)

// Bolt is a bbolt-backed Backend. A single *bolt.DB handles its own
// single-writer locking internally, so Bolt needs no additional mutex.
type Bolt struct {
	db *bolt.DB
}

// envelope is the on-disk JSON form of a Record.
type envelope struct {
	Category  string    `json:"category"`
	Key       string    `json:"key"`
	Content   []byte    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// OpenBolt opens (or creates) the bbolt database at path, initialising the
// buckets this package depends on.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("memstore: bolt.Open(%q): %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketLatest, bucketLog} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Bolt{db: db}, nil
}

func latestKey(category, key string) []byte {
	return []byte(category + "\x00" + key)
}

// Append implements Backend.
func (b *Bolt) Append(rec Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	env := envelope{Category: rec.Category, Key: rec.Key, Content: rec.Content, Timestamp: rec.Timestamp}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("memstore: marshal record: %w", err)
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		latest := tx.Bucket([]byte(bucketLatest))
		if err := latest.Put(latestKey(rec.Category, rec.Key), data); err != nil {
			return fmt.Errorf("memstore: put latest: %w", err)
		}

		log := tx.Bucket([]byte(bucketLog))
		seq, err := log.NextSequence()
		if err != nil {
			return fmt.Errorf("memstore: next sequence: %w", err)
		}
		seqKey := make([]byte, 8)
		binary.BigEndian.PutUint64(seqKey, seq)
		if err := log.Put(seqKey, data); err != nil {
			return fmt.Errorf("memstore: put log entry: %w", err)
		}
		return nil
	})
}

// List implements Backend. It reads from the latest-value view, sorted by
// timestamp descending, since that bucket deduplicates repeat writes to
// the same key the way the audit sink expects.
func (b *Bolt) List(category string, limit int) ([]Record, error) {
	var out []Record

	err := b.db.View(func(tx *bolt.Tx) error {
		latest := tx.Bucket([]byte(bucketLatest))
		c := latest.Cursor()
		prefix := []byte(category + "\x00")
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			var env envelope
			if err := json.Unmarshal(v, &env); err != nil {
				return fmt.Errorf("memstore: unmarshal %s: %w", k, err)
			}
			out = append(out, Record{Category: env.Category, Key: env.Key, Content: env.Content, Timestamp: env.Timestamp})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All implements Backend, replaying the append-only log in write order.
func (b *Bolt) All() ([]Record, error) {
	var out []Record

	err := b.db.View(func(tx *bolt.Tx) error {
		log := tx.Bucket([]byte(bucketLog))
		return log.ForEach(func(_, v []byte) error {
			var env envelope
			if err := json.Unmarshal(v, &env); err != nil {
				return fmt.Errorf("memstore: unmarshal log entry: %w", err)
			}
			out = append(out, Record{Category: env.Category, Key: env.Key, Content: env.Content, Timestamp: env.Timestamp})
			return nil
		})
	})
	return out, err
}

// Close implements Backend.
func (b *Bolt) Close() error { return b.db.Close() }

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}
