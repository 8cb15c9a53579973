package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned by Get when no analysis exists for a position.
var ErrNotFound = errors.New("analysis not found")

const keyPrefix = "pos/"

// Record is a completed root search.
type Record struct {
	Move    string    `json:"move"`
	Score   int       `json:"score"`
	Depth   int       `json:"depth"`
	PV      []string  `json:"pv"`
	Nodes   uint64    `json:"nodes"`
	Updated time.Time `json:"updated"`
}

// AnalysisStore wraps BadgerDB.
type AnalysisStore struct {
	db *badger.DB
}

// Open opens (or creates) the store in dir. An empty dir uses the platform
// data directory.
func Open(dir string) (*AnalysisStore, error) {
	dbDir, err := AnalysisDir(dir)
	if err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open analysis store: %w", err)
	}
	log.Debug().Str("dir", dbDir).Msg("analysis-store-open")
	return &AnalysisStore{db: db}, nil
}

// OpenInMemory opens a store that lives only as long as the process.
func OpenInMemory() (*AnalysisStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open analysis store: %w", err)
	}
	return &AnalysisStore{db: db}, nil
}

func (s *AnalysisStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Fingerprint hashes the position fields of a FEN: placement, side to move,
// castling and en passant. Move counters are ignored so transposed games
// share analysis.
func Fingerprint(fen string) uint64 {
	fields := strings.Fields(fen)
	if len(fields) > 4 {
		fields = fields[:4]
	}
	return xxhash.Sum64String(strings.Join(fields, " "))
}

func recordKey(fen string) []byte {
	key := make([]byte, len(keyPrefix)+8)
	copy(key, keyPrefix)
	binary.BigEndian.PutUint64(key[len(keyPrefix):], Fingerprint(fen))
	return key
}

// Get returns the stored analysis for fen or ErrNotFound.
func (s *AnalysisStore) Get(fen string) (Record, error) {
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(fen))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	return rec, err
}

// Put stores rec for fen unless a deeper analysis is already present.
func (s *AnalysisStore) Put(fen string, rec Record) error {
	if rec.Updated.IsZero() {
		rec.Updated = time.Now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	key := recordKey(fen)
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			var old Record
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &old)
			}); err == nil && old.Depth > rec.Depth {
				return nil
			}
		}
		return txn.Set(key, data)
	})
}

// Len counts the stored analyses.
func (s *AnalysisStore) Len() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}
