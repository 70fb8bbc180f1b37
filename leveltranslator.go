package cdk

import (
	"encoding/binary"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// LevelTranslator maintains a stable two-way mapping between the value of
// a table's key column and a monotonic uint64 row id, one pair of leveldb
// databases per table. Re-ingesting the same key yields the same id, so
// repeated imports overwrite rather than duplicate.
type LevelTranslator struct {
	tmu    sync.RWMutex
	tables map[string]mapDBs
}

type mapDBs struct {
	mu     *sync.Mutex
	idMap  *leveldb.DB
	valMap *leveldb.DB
	curID  *uint64
}

// Errors collects multiple close failures.
type Errors []error

func (errs Errors) Error() string {
	strs := make([]string, len(errs))
	for i, err := range errs {
		strs[i] = err.Error()
	}
	return strings.Join(strs, "; ")
}

// NewLevelTranslator opens (or creates) the databases for the given
// tables under dirname.
func NewLevelTranslator(dirname string, tables ...string) (*LevelTranslator, error) {
	lt := &LevelTranslator{tables: make(map[string]mapDBs)}
	for _, table := range tables {
		var initialID uint64
		dbs := mapDBs{curID: &initialID, mu: &sync.Mutex{}}
		var err error
		dbs.idMap, err = leveldb.OpenFile(filepath.Join(dirname, table+"-id"), &opt.Options{})
		if err != nil {
			return nil, errors.Wrapf(err, "opening id map for %v", table)
		}
		dbs.valMap, err = leveldb.OpenFile(filepath.Join(dirname, table+"-val"), &opt.Options{})
		if err != nil {
			return nil, errors.Wrapf(err, "opening val map for %v", table)
		}
		iter := dbs.idMap.NewIterator(nil, nil)
		if iter.Last() {
			*dbs.curID = binary.BigEndian.Uint64(iter.Key()) + 1
		}
		iter.Release()
		lt.tables[table] = dbs
	}
	return lt, nil
}

// GetID returns the row id for val in table, allocating a fresh one for
// values not seen before.
func (lt *LevelTranslator) GetID(table, val string) (uint64, error) {
	lt.tmu.RLock()
	dbs, ok := lt.tables[table]
	lt.tmu.RUnlock()
	if !ok {
		return 0, errors.Errorf("table %v not found in translator", table)
	}
	valBytes := []byte(val)
	dbs.mu.Lock()
	defer dbs.mu.Unlock()
	if data, err := dbs.valMap.Get(valBytes, nil); err == nil {
		return binary.BigEndian.Uint64(data), nil
	} else if err != leveldb.ErrNotFound {
		return 0, errors.Wrap(err, "reading value map")
	}
	id := *dbs.curID
	*dbs.curID++
	idBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(idBytes, id)
	if err := dbs.valMap.Put(valBytes, idBytes, nil); err != nil {
		return 0, errors.Wrap(err, "writing value map")
	}
	if err := dbs.idMap.Put(idBytes, valBytes, nil); err != nil {
		return 0, errors.Wrap(err, "writing id map")
	}
	return id, nil
}

// Get returns the key value previously mapped to id.
func (lt *LevelTranslator) Get(table string, id uint64) (string, error) {
	lt.tmu.RLock()
	dbs, ok := lt.tables[table]
	lt.tmu.RUnlock()
	if !ok {
		return "", errors.Errorf("table %v not found in translator", table)
	}
	idBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(idBytes, id)
	data, err := dbs.idMap.Get(idBytes, nil)
	if err != nil {
		return "", errors.Wrapf(err, "no value for id %d in %v", id, table)
	}
	return string(data), nil
}

// Close closes all databases, collecting any errors.
func (lt *LevelTranslator) Close() error {
	errs := make(Errors, 0)
	for table, dbs := range lt.tables {
		if err := dbs.idMap.Close(); err != nil {
			errs = append(errs, errors.Wrapf(err, "closing id map for %v", table))
		}
		if err := dbs.valMap.Close(); err != nil {
			errs = append(errs, errors.Wrapf(err, "closing val map for %v", table))
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}
