// Package postgres persists the in-memory cube store to PostgreSQL as a
// JSON snapshot, mirroring the sqlite store's wrapping approach.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"ncube/internal/infra/persistence/memory"
	"ncube/pkg/domain"
)

var _ domain.Persister = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/ncube?sslmode=disable"

	bucketRecords  = "records"
	bucketTestData = "test_data"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store wraps a memory.Store, persisting its exported state to Postgres
// after every mutating call.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using dsn (falls back to
// defaultDSN), ensures the snapshot table exists, and hydrates the
// in-memory store from any existing snapshot.
func NewStore(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureStateTable(ctx, db); err != nil {
		return nil, err
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore()
	mem.ImportState(snapshot)
	return &Store{Store: mem, db: db}, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

func ensureStateTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure state table: %w", err)
	}
	return nil
}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan state: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		switch bucket {
		case bucketRecords:
			if err := json.Unmarshal(payload, &snapshot.Records); err != nil {
				return memory.Snapshot{}, fmt.Errorf("decode records: %w", err)
			}
		case bucketTestData:
			if err := json.Unmarshal(payload, &snapshot.TestData); err != nil {
				return memory.Snapshot{}, fmt.Errorf("decode test data: %w", err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate state: %w", err)
	}
	return snapshot, nil
}

func (s *Store) persist(ctx context.Context) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.Store.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	records, err := json.Marshal(snapshot.Records)
	if err != nil {
		return err
	}
	testData, err := json.Marshal(snapshot.TestData)
	if err != nil {
		return err
	}
	for _, kv := range []struct {
		bucket  string
		payload []byte
	}{{bucketRecords, records}, {bucketTestData, testData}} {
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`, kv.bucket, kv.payload); err != nil {
			return fmt.Errorf("upsert %s: %w", kv.bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func (s *Store) UpdateCube(ctx context.Context, cube *domain.Cube, username string) (domain.NCubeInfoDto, error) {
	dto, err := s.Store.UpdateCube(ctx, cube, username)
	if err != nil {
		return dto, err
	}
	return dto, s.persist(ctx)
}

func (s *Store) DeleteCubes(ctx context.Context, appID domain.ApplicationID, names []string, username string) (int, error) {
	n, err := s.Store.DeleteCubes(ctx, appID, names, username)
	if err != nil {
		return n, err
	}
	return n, s.persist(ctx)
}

func (s *Store) RestoreCubes(ctx context.Context, appID domain.ApplicationID, names []string, username string) (int, error) {
	n, err := s.Store.RestoreCubes(ctx, appID, names, username)
	if err != nil {
		return n, err
	}
	return n, s.persist(ctx)
}

func (s *Store) RenameCube(ctx context.Context, appID domain.ApplicationID, oldName, newName, username string) error {
	if err := s.Store.RenameCube(ctx, appID, oldName, newName, username); err != nil {
		return err
	}
	return s.persist(ctx)
}

func (s *Store) DuplicateCube(ctx context.Context, srcAppID domain.ApplicationID, srcName string, dstAppID domain.ApplicationID, dstName, username string) error {
	if err := s.Store.DuplicateCube(ctx, srcAppID, srcName, dstAppID, dstName, username); err != nil {
		return err
	}
	return s.persist(ctx)
}

func (s *Store) CopyBranch(ctx context.Context, srcAppID, dstAppID domain.ApplicationID, username string) (int, error) {
	n, err := s.Store.CopyBranch(ctx, srcAppID, dstAppID, username)
	if err != nil {
		return n, err
	}
	return n, s.persist(ctx)
}

func (s *Store) CopyBranchWithHistory(ctx context.Context, srcAppID, dstAppID domain.ApplicationID, username string) (int, error) {
	n, err := s.Store.CopyBranchWithHistory(ctx, srcAppID, dstAppID, username)
	if err != nil {
		return n, err
	}
	return n, s.persist(ctx)
}

func (s *Store) MoveBranch(ctx context.Context, appID domain.ApplicationID, newVersion, username string) (int, error) {
	n, err := s.Store.MoveBranch(ctx, appID, newVersion, username)
	if err != nil {
		return n, err
	}
	return n, s.persist(ctx)
}

func (s *Store) ReleaseCubes(ctx context.Context, appID domain.ApplicationID, newSnapshotVersion, username string) (int, error) {
	n, err := s.Store.ReleaseCubes(ctx, appID, newSnapshotVersion, username)
	if err != nil {
		return n, err
	}
	return n, s.persist(ctx)
}

func (s *Store) DeleteBranch(ctx context.Context, appID domain.ApplicationID, username string) error {
	if err := s.Store.DeleteBranch(ctx, appID, username); err != nil {
		return err
	}
	return s.persist(ctx)
}

func (s *Store) UpdateTestData(ctx context.Context, appID domain.ApplicationID, name string, testData []byte, username string) error {
	if err := s.Store.UpdateTestData(ctx, appID, name, testData, username); err != nil {
		return err
	}
	return s.persist(ctx)
}

func (s *Store) UpdateNotes(ctx context.Context, appID domain.ApplicationID, name, notes, username string) error {
	if err := s.Store.UpdateNotes(ctx, appID, name, notes, username); err != nil {
		return err
	}
	return s.persist(ctx)
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a
// restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	prev := sqlOpen
	sqlOpen = fn
	openMu.Unlock()
	return func() {
		openMu.Lock()
		sqlOpen = prev
		openMu.Unlock()
	}
}
