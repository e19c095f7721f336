// Package sqlite persists the in-memory cube store to a single SQLite table
// as a JSON snapshot, reloading it at startup.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"ncube/internal/infra/persistence/memory"
	"ncube/pkg/domain"
)

var _ domain.Persister = (*Store)(nil)

// Store wraps a memory.Store, persisting its exported state to SQLite after
// every mutating call and rehydrating from it at construction time.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens or creates a SQLite-backed store at path (default
// ./ncube.db).
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "ncube.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(), db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

const (
	bucketRecords  = "records"
	bucketTestData = "test_data"
)

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan state: %w", err)
		}
		switch bucket {
		case bucketRecords:
			if err := json.Unmarshal(payload, &snapshot.Records); err != nil {
				return fmt.Errorf("decode records: %w", err)
			}
		case bucketTestData:
			if err := json.Unmarshal(payload, &snapshot.TestData); err != nil {
				return fmt.Errorf("decode test data: %w", err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	s.Store.ImportState(snapshot)
	return nil
}

func (s *Store) persist() (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.Store.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	records, err := json.Marshal(snapshot.Records)
	if err != nil {
		retErr = err
		return retErr
	}
	testData, err := json.Marshal(snapshot.TestData)
	if err != nil {
		retErr = err
		return retErr
	}
	for _, kv := range []struct {
		bucket  string
		payload []byte
	}{{bucketRecords, records}, {bucketTestData, testData}} {
		if _, err := tx.Exec(`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, kv.bucket, kv.payload); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", kv.bucket, err)
			return retErr
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

func (s *Store) UpdateCube(ctx context.Context, cube *domain.Cube, username string) (domain.NCubeInfoDto, error) {
	dto, err := s.Store.UpdateCube(ctx, cube, username)
	if err != nil {
		return dto, err
	}
	return dto, s.persist()
}

func (s *Store) DeleteCubes(ctx context.Context, appID domain.ApplicationID, names []string, username string) (int, error) {
	n, err := s.Store.DeleteCubes(ctx, appID, names, username)
	if err != nil {
		return n, err
	}
	return n, s.persist()
}

func (s *Store) RestoreCubes(ctx context.Context, appID domain.ApplicationID, names []string, username string) (int, error) {
	n, err := s.Store.RestoreCubes(ctx, appID, names, username)
	if err != nil {
		return n, err
	}
	return n, s.persist()
}

func (s *Store) RenameCube(ctx context.Context, appID domain.ApplicationID, oldName, newName, username string) error {
	if err := s.Store.RenameCube(ctx, appID, oldName, newName, username); err != nil {
		return err
	}
	return s.persist()
}

func (s *Store) DuplicateCube(ctx context.Context, srcAppID domain.ApplicationID, srcName string, dstAppID domain.ApplicationID, dstName, username string) error {
	if err := s.Store.DuplicateCube(ctx, srcAppID, srcName, dstAppID, dstName, username); err != nil {
		return err
	}
	return s.persist()
}

func (s *Store) CopyBranch(ctx context.Context, srcAppID, dstAppID domain.ApplicationID, username string) (int, error) {
	n, err := s.Store.CopyBranch(ctx, srcAppID, dstAppID, username)
	if err != nil {
		return n, err
	}
	return n, s.persist()
}

func (s *Store) CopyBranchWithHistory(ctx context.Context, srcAppID, dstAppID domain.ApplicationID, username string) (int, error) {
	n, err := s.Store.CopyBranchWithHistory(ctx, srcAppID, dstAppID, username)
	if err != nil {
		return n, err
	}
	return n, s.persist()
}

func (s *Store) MoveBranch(ctx context.Context, appID domain.ApplicationID, newVersion, username string) (int, error) {
	n, err := s.Store.MoveBranch(ctx, appID, newVersion, username)
	if err != nil {
		return n, err
	}
	return n, s.persist()
}

func (s *Store) ReleaseCubes(ctx context.Context, appID domain.ApplicationID, newSnapshotVersion, username string) (int, error) {
	n, err := s.Store.ReleaseCubes(ctx, appID, newSnapshotVersion, username)
	if err != nil {
		return n, err
	}
	return n, s.persist()
}

func (s *Store) DeleteBranch(ctx context.Context, appID domain.ApplicationID, username string) error {
	if err := s.Store.DeleteBranch(ctx, appID, username); err != nil {
		return err
	}
	return s.persist()
}

func (s *Store) UpdateTestData(ctx context.Context, appID domain.ApplicationID, name string, testData []byte, username string) error {
	if err := s.Store.UpdateTestData(ctx, appID, name, testData, username); err != nil {
		return err
	}
	return s.persist()
}

func (s *Store) UpdateNotes(ctx context.Context, appID domain.ApplicationID, name, notes, username string) error {
	if err := s.Store.UpdateNotes(ctx, appID, name, notes, username); err != nil {
		return err
	}
	return s.persist()
}
