package backup_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/momenta/swipe-engine/internal/backup"
	"github.com/momenta/swipe-engine/internal/storage/sqlite"
	"github.com/momenta/swipe-engine/pkg/types"
)

// newTestDB creates a populated store and returns its file path.
func newTestDB(t *testing.T) string {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "swipe.db")
	store, err := sqlite.NewStore(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.StoreEmbedding(ctx, types.EntityTypeUser, "u1", []float64{0.1, 0.2}, "test-model"); err != nil {
		t.Fatalf("failed to store embedding: %v", err)
	}
	return dbPath
}

func TestSnapshotNow(t *testing.T) {
	dbPath := newTestDB(t)
	dir := t.TempDir()

	svc, err := backup.NewService(backup.Config{DBPath: dbPath, Dir: dir})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	path, err := svc.SnapshotNow()
	if err != nil {
		t.Fatalf("SnapshotNow: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("snapshot file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("snapshot file is empty")
	}

	// The snapshot must be a usable database containing the stored data.
	restored, err := sqlite.NewStore(path)
	if err != nil {
		t.Fatalf("failed to open snapshot as store: %v", err)
	}
	defer restored.Close()

	ids, err := restored.FindAllIDs(context.Background(), types.EntityTypeUser, 10, 0)
	if err != nil {
		t.Fatalf("FindAllIDs on snapshot: %v", err)
	}
	if len(ids) != 1 || ids[0] != "u1" {
		t.Errorf("snapshot ids = %v, want [u1]", ids)
	}
}

func TestSnapshotMissingDatabase(t *testing.T) {
	svc, err := backup.NewService(backup.Config{
		DBPath: filepath.Join(t.TempDir(), "absent.db"),
		Dir:    t.TempDir(),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if _, err := svc.SnapshotNow(); err == nil {
		t.Fatal("expected error for missing database")
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	dbPath := newTestDB(t)
	dir := t.TempDir()

	// Pre-seed old snapshot files. Lexical order is chronological.
	old := []string{
		"swipe-20240101-000000.db",
		"swipe-20240102-000000.db",
		"swipe-20240103-000000.db",
	}
	for _, name := range old {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("stale"), 0o600); err != nil {
			t.Fatalf("failed to seed snapshot: %v", err)
		}
	}
	// Unrelated files are never touched.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0o600); err != nil {
		t.Fatalf("failed to seed file: %v", err)
	}

	svc, err := backup.NewService(backup.Config{DBPath: dbPath, Dir: dir, Keep: 2})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	if _, err := svc.SnapshotNow(); err != nil {
		t.Fatalf("SnapshotNow: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	var snapshots []string
	sawNotes := false
	for _, entry := range entries {
		if entry.Name() == "notes.txt" {
			sawNotes = true
			continue
		}
		snapshots = append(snapshots, entry.Name())
	}
	if !sawNotes {
		t.Error("unrelated file was removed")
	}
	if len(snapshots) != 2 {
		t.Fatalf("got %d snapshots after prune, want 2: %v", len(snapshots), snapshots)
	}
	// The two oldest seeds must be gone.
	for _, name := range snapshots {
		if name == old[0] || name == old[1] {
			t.Errorf("stale snapshot %s survived pruning", name)
		}
	}
}

func TestStartStopIdempotent(t *testing.T) {
	dbPath := newTestDB(t)

	svc, err := backup.NewService(backup.Config{
		DBPath:   dbPath,
		Dir:      t.TempDir(),
		Interval: time.Hour,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	ctx := context.Background()
	svc.Start(ctx)
	svc.Start(ctx) // no-op

	svc.Stop()
	svc.Stop() // no-op
}
