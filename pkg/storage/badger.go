package storage

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	logPrefix        = "log:"
	levelIndexPrefix = "index:level:"
)

// ErrInvalidDomain is returned for empty domains or domains containing ':'
var ErrInvalidDomain = errors.New("invalid domain")

// BadgerStorage keeps raw log events per domain in Badger
type BadgerStorage struct {
	db              *badger.DB
	retentionSize   int64 // in bytes
	retentionDays   int
	mu              sync.RWMutex
	writeCount      int
	cleanupInterval int
	cleanupChan     chan struct{}
	doneChan        chan struct{}
}

// Config holds storage configuration
type Config struct {
	DBPath        string
	RetentionSize int64 // in bytes (e.g., 1GB = 1073741824)
	RetentionDays int
}

// NewBadgerStorage creates a new Badger storage instance
func NewBadgerStorage(cfg Config) (*BadgerStorage, error) {
	dbPath := expandPath(cfg.DBPath)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	// Run value log garbage collection in background
	go func() {
		db.RunValueLogGC(0.5)
	}()

	s := &BadgerStorage{
		db:              db,
		retentionSize:   cfg.RetentionSize,
		retentionDays:   cfg.RetentionDays,
		cleanupInterval: 1000, // Run cleanup every 1000 writes
		cleanupChan:     make(chan struct{}, 1),
		doneChan:        make(chan struct{}),
	}

	if err := s.enforceRetention(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enforce retention: %w", err)
	}

	go s.cleanupWorker()

	return s, nil
}

func validDomain(domain string) error {
	if domain == "" || strings.Contains(domain, ":") {
		return fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}
	return nil
}

// log:{domain}:{timestamp}:{id}; timestamps are zero-padded so keys sort by time
func logKey(e *Event) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", logPrefix, e.Domain, e.Timestamp.UnixNano(), e.ID))
}

// index:level:{domain}:{level}:{timestamp}:{id}
func levelKey(e *Event) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%020d:%s", levelIndexPrefix, e.Domain, e.Level, e.Timestamp.UnixNano(), e.ID))
}

func domainPrefix(domain string) []byte {
	return []byte(logPrefix + domain + ":")
}

// Store saves one event
func (s *BadgerStorage) Store(e *Event) error {
	return s.StoreBatch([]*Event{e})
}

// StoreBatch saves events in a single transaction
func (s *BadgerStorage) StoreBatch(events []*Event) error {
	for _, e := range events {
		if err := validDomain(e.Domain); err != nil {
			return err
		}
	}

	s.mu.Lock()
	before := s.writeCount / s.cleanupInterval
	s.writeCount += len(events)
	shouldCleanup := s.writeCount/s.cleanupInterval > before
	s.mu.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, e := range events {
			data, err := e.ToJSON()
			if err != nil {
				return fmt.Errorf("failed to serialize event: %w", err)
			}
			if err := txn.Set(logKey(e), data); err != nil {
				return err
			}
			if err := txn.Set(levelKey(e), []byte(e.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store events: %w", err)
	}

	if shouldCleanup {
		select {
		case s.cleanupChan <- struct{}{}:
		default:
			// Cleanup already pending
		}
	}

	return nil
}

// Query returns a domain's events newest first, plus the number of matches
func (s *BadgerStorage) Query(domain string, filter Filter, limit, offset int) ([]*Event, int, error) {
	if err := validDomain(domain); err != nil {
		return nil, 0, err
	}
	if filter == nil {
		filter = AllFilter{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []*Event
	total := 0
	skipped := 0

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := domainPrefix(domain)
		for it.Seek(append(bytes.Clone(prefix), 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				e, err := FromJSON(val)
				if err != nil {
					return nil // Skip invalid entries
				}
				if !filter.Match(e) {
					return nil
				}

				total++
				if skipped < offset {
					skipped++
					return nil
				}
				if limit <= 0 || len(events) < limit {
					events = append(events, e)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	return events, total, err
}

// Stats represents storage statistics
type Stats struct {
	TotalLogs int                       `json:"total_logs"`
	DBSizeMB  float64                   `json:"db_size_mb"`
	Domains   map[string]int            `json:"domains"`
	Levels    map[string]map[string]int `json:"levels"`
}

// GetStats counts events per domain and per domain and level
func (s *BadgerStorage) GetStats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Domains: make(map[string]int),
		Levels:  make(map[string]map[string]int),
	}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(logPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			domain, _, _ := strings.Cut(string(it.Item().Key()[len(logPrefix):]), ":")
			stats.Domains[domain]++
			stats.TotalLogs++
		}

		// Key: index:level:{domain}:{level}:{timestamp}:{id}
		it2 := txn.NewIterator(opts)
		defer it2.Close()
		levelPrefix := []byte(levelIndexPrefix)
		for it2.Seek(levelPrefix); it2.ValidForPrefix(levelPrefix); it2.Next() {
			parts := strings.SplitN(string(it2.Item().Key()[len(levelIndexPrefix):]), ":", 3)
			if len(parts) < 2 {
				continue
			}
			if stats.Levels[parts[0]] == nil {
				stats.Levels[parts[0]] = make(map[string]int)
			}
			stats.Levels[parts[0]][parts[1]]++
		}
		return nil
	})
	if err != nil {
		return stats, err
	}

	lsm, vlog := s.db.Size()
	stats.DBSizeMB = float64(lsm+vlog) / (1024 * 1024)

	return stats, nil
}

// DeleteAll deletes every event of a domain
func (s *BadgerStorage) DeleteAll(domain string) (int, error) {
	if err := validDomain(domain); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteWhere(domainPrefix(domain), func(*Event) bool { return true })
}

// DeleteOlderThan deletes events of every domain older than cutoff
func (s *BadgerStorage) DeleteOlderThan(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteWhere([]byte(logPrefix), func(e *Event) bool { return e.Timestamp.Before(cutoff) })
}

// deleteWhere removes matching events under prefix together with their
// index keys. The caller holds the write lock.
func (s *BadgerStorage) deleteWhere(prefix []byte, match func(*Event) bool) (int, error) {
	var keys [][]byte
	count := 0

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				e, err := FromJSON(val)
				if err != nil {
					// Unreadable values are removed without an index key
					keys = append(keys, item.KeyCopy(nil))
					return nil
				}
				if !match(e) {
					return nil
				}
				keys = append(keys, item.KeyCopy(nil), levelKey(e))
				count++
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return count, s.deleteKeys(keys)
}

// deleteKeys deletes keys in batches that fit one transaction
func (s *BadgerStorage) deleteKeys(keys [][]byte) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// enforceRetention removes old entries based on retention policy
func (s *BadgerStorage) enforceRetention() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lsm, vlog := s.db.Size()
	currentSize := lsm + vlog

	if s.retentionSize > 0 && currentSize > s.retentionSize {
		// Delete 20% more to have buffer
		return s.deleteOldestEntries(int64(float64(currentSize-s.retentionSize) * 1.2))
	}

	if s.retentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
		_, err := s.deleteWhere([]byte(logPrefix), func(e *Event) bool { return e.Timestamp.Before(cutoff) })
		return err
	}

	return nil
}

// deleteOldestEntries deletes approximately targetBytes worth of the oldest
// events across all domains
func (s *BadgerStorage) deleteOldestEntries(targetBytes int64) error {
	type candidate struct {
		ts   int64
		size int64
		keys [][]byte
	}
	var candidates []candidate

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(logPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			c := candidate{size: item.EstimatedSize(), keys: [][]byte{item.KeyCopy(nil)}}
			err := item.Value(func(val []byte) error {
				if e, err := FromJSON(val); err == nil {
					c.ts = e.Timestamp.UnixNano()
					c.keys = append(c.keys, levelKey(e))
				}
				return nil
			})
			if err != nil {
				return err
			}
			candidates = append(candidates, c)
		}
		return nil
	})
	if err != nil {
		return err
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ts < candidates[j].ts })

	var keys [][]byte
	var deleted int64
	for _, c := range candidates {
		if deleted >= targetBytes {
			break
		}
		keys = append(keys, c.keys...)
		deleted += c.size
	}
	return s.deleteKeys(keys)
}

// CompactDatabase runs garbage collection to reclaim disk space
func (s *BadgerStorage) CompactDatabase() error {
	return s.db.RunValueLogGC(0.5)
}

// GetDBPath returns the database path
func (s *BadgerStorage) GetDBPath() string {
	return s.db.Opts().Dir
}

// Close closes the database
func (s *BadgerStorage) Close() error {
	close(s.doneChan)
	return s.db.Close()
}

// cleanupWorker runs in the background and handles cleanup requests
func (s *BadgerStorage) cleanupWorker() {
	for {
		select {
		case <-s.cleanupChan:
			s.enforceRetention()
		case <-s.doneChan:
			return
		}
	}
}

// Filter selects events in Query
type Filter interface {
	Match(e *Event) bool
}

// AllFilter matches all events
type AllFilter struct{}

func (f AllFilter) Match(e *Event) bool {
	return true
}

// LevelFilter matches events by level
type LevelFilter struct {
	Level string
}

func (f LevelFilter) Match(e *Event) bool {
	return e.Level == f.Level
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
