package cdk

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

// BoltStore is a Putter persisting typed rows in a bolt database, one
// bucket per table, rows JSON-encoded under a uint64 row id. When a key
// column and a translator are configured, the id is derived from the key
// column's value so re-imports overwrite; otherwise ids come from the
// bucket sequence.
type BoltStore struct {
	db         *bolt.DB
	translator *LevelTranslator
	keyColumn  string
}

// BoltOption is a functional option for NewBoltStore.
type BoltOption func(s *BoltStore)

// OptBoltKeyColumn makes the store derive row ids from the named column
// through the translator.
func OptBoltKeyColumn(col string, lt *LevelTranslator) BoltOption {
	return func(s *BoltStore) {
		s.keyColumn = col
		s.translator = lt
	}
}

// NewBoltStore opens (or creates) the database at filename.
func NewBoltStore(filename string, opts ...BoltOption) (*BoltStore, error) {
	db, err := bolt.Open(filename, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening db file %v", filename)
	}
	s := &BoltStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Put stores one row under the table's bucket.
func (s *BoltStore) Put(table string, row map[string]interface{}) error {
	data, err := json.Marshal(row)
	if err != nil {
		return errors.Wrap(err, "encoding row")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(table))
		if err != nil {
			return errors.Wrapf(err, "creating bucket %v", table)
		}
		id, err := s.rowID(table, b, row)
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, id)
		return b.Put(key, data)
	})
}

func (s *BoltStore) rowID(table string, b *bolt.Bucket, row map[string]interface{}) (uint64, error) {
	if s.keyColumn == "" || s.translator == nil {
		return b.NextSequence()
	}
	v, ok := row[s.keyColumn]
	if !ok || v == nil {
		return 0, errors.Errorf("row misses key column %q", s.keyColumn)
	}
	sv, ok := v.(string)
	if !ok {
		return 0, errors.Errorf("key column %q must be text, got %T", s.keyColumn, v)
	}
	return s.translator.GetID(table, sv)
}

// Row reads back the row stored under id, mostly for verification and
// tests.
func (s *BoltStore) Row(table string, id uint64) (map[string]interface{}, error) {
	var row map[string]interface{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil {
			return errors.Errorf("no table %v", table)
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, id)
		data := b.Get(key)
		if data == nil {
			return errors.Errorf("no row %d in %v", id, table)
		}
		return json.Unmarshal(data, &row)
	})
	return row, err
}

// Count returns the number of rows stored for table.
func (s *BoltStore) Count(table string) (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil {
			return nil
		}
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}

// Close syncs and closes the database (and the translator, if any).
func (s *BoltStore) Close() error {
	if s.translator != nil {
		if err := s.translator.Close(); err != nil {
			s.db.Close()
			return errors.Wrap(err, "closing translator")
		}
	}
	return s.db.Close()
}
