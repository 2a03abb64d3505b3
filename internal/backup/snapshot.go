// Package backup takes periodic snapshots of the SQLite database so a
// corrupted or accidentally wiped store can be recovered without replaying
// every embedding and clustering run.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// snapshotTimeFormat orders snapshot filenames lexically by creation time.
const snapshotTimeFormat = "20060102-150405"

// Config holds snapshot service configuration.
type Config struct {
	// DBPath is the SQLite database file to snapshot.
	DBPath string

	// Dir is where snapshot files are written.
	Dir string

	// Interval between snapshots. Defaults to 6h.
	Interval time.Duration

	// Keep is how many snapshots to retain. Older ones are pruned after
	// each successful snapshot. Defaults to 12.
	Keep int
}

// Service snapshots the database on a timer. Snapshots use VACUUM INTO,
// which produces a consistent copy even while the store is in WAL mode and
// serving writes.
type Service struct {
	dbPath   string
	dir      string
	interval time.Duration
	keep     int

	mu        sync.Mutex
	isRunning bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func NewService(config Config) (*Service, error) {
	if config.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if config.Dir == "" {
		return nil, fmt.Errorf("snapshot directory is required")
	}
	if config.Interval <= 0 {
		config.Interval = 6 * time.Hour
	}
	if config.Keep <= 0 {
		config.Keep = 12
	}
	if err := os.MkdirAll(config.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	return &Service{
		dbPath:   config.DBPath,
		dir:      config.Dir,
		interval: config.Interval,
		keep:     config.Keep,
	}, nil
}

// Start launches the snapshot loop. Calling Start on a running service is a
// no-op.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		log.Println("WARNING: snapshot service already running, ignoring Start")
		return
	}
	s.isRunning = true
	stopCh := make(chan struct{})
	s.stopCh = stopCh
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx, stopCh)
}

// Stop halts the snapshot loop and waits for an in-flight snapshot to
// finish. Safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Service) loop(ctx context.Context, stopCh chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			path, err := s.SnapshotNow()
			if err != nil {
				log.Printf("ERROR: snapshot failed: %v", err)
				continue
			}
			log.Printf("snapshot written: %s", path)
		}
	}
}

// SnapshotNow writes one snapshot, verifies it, and prunes old ones.
// Returns the snapshot path.
func (s *Service) SnapshotNow() (string, error) {
	if _, err := os.Stat(s.dbPath); err != nil {
		return "", fmt.Errorf("database not found: %w", err)
	}

	name := fmt.Sprintf("swipe-%s.db", time.Now().UTC().Format(snapshotTimeFormat))
	path := filepath.Join(s.dir, name)

	if err := vacuumInto(s.dbPath, path); err != nil {
		os.Remove(path)
		return "", err
	}
	if err := verify(path); err != nil {
		os.Remove(path)
		return "", err
	}

	if err := s.prune(); err != nil {
		// Pruning failure leaves extra snapshots behind but the new
		// snapshot itself is good.
		log.Printf("WARNING: failed to prune old snapshots: %v", err)
	}
	return path, nil
}

// prune removes the oldest snapshots beyond the retention count.
func (s *Service) prune() error {
	names, err := s.list()
	if err != nil {
		return err
	}
	if len(names) <= s.keep {
		return nil
	}
	for _, name := range names[:len(names)-s.keep] {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}
	return nil
}

// list returns snapshot filenames sorted oldest first. The timestamp format
// makes lexical order chronological.
func (s *Service) list() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "swipe-") || !strings.HasSuffix(name, ".db") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func vacuumInto(sourcePath, destPath string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", sourcePath))
	if err != nil {
		return fmt.Errorf("failed to open source database: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec(fmt.Sprintf("VACUUM INTO '%s'", destPath)); err != nil {
		return fmt.Errorf("failed to snapshot database: %w", err)
	}
	return nil
}

// verify runs SQLite's integrity check against a snapshot.
func verify(path string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}
