package domain

import (
	"context"
	"time"
)

// NCubeInfoDto is the metadata record a Persister returns for a stored cube
// revision, independent of the cube body itself (mirrors the info rows a
// search or revision listing returns without paying to deserialize cells).
type NCubeInfoDto struct {
	ID         int64
	Tenant     string
	App        string
	Version    string
	Status     Status
	Branch     string
	Name       string
	Revision   int64
	Sha1       string
	HeadSha1   string
	CreateDate time.Time
	CreateHid  string
	Notes      string
	Changed    bool

	// CubeData and TestData are populated only when the originating Search
	// call set IncludeCubeData / IncludeTestData; otherwise they are nil.
	CubeData []byte
	TestData []byte
}

// SearchOptions filters and shapes a Persister.Search call. The three
// "include*" flags are opt-in because a listing over many cubes is normally
// read for its metadata alone; request the heavier fields only when needed.
type SearchOptions struct {
	CubeNamePattern string
	ContentPattern  string
	ActiveOnly      bool
	ExactMatchName  bool

	DeletedRecordsOnly bool
	ChangedRecordsOnly bool

	IncludeCubeData bool
	IncludeTestData bool
	IncludeNotes    bool
}

// Persister is the durability port the registry drives. Most mutating
// registry operations make one Persister call behind a rules evaluation;
// ReleaseCubes also moves branches directly, and the lock, test-data and
// notes updates call the Persister without rule evaluation.
type Persister interface {
	LoadCube(ctx context.Context, appID ApplicationID, name string) (*Cube, error)
	LoadCubeByID(ctx context.Context, id int64) (*Cube, error)
	UpdateCube(ctx context.Context, cube *Cube, username string) (NCubeInfoDto, error)
	DeleteCubes(ctx context.Context, appID ApplicationID, names []string, username string) (int, error)
	RestoreCubes(ctx context.Context, appID ApplicationID, names []string, username string) (int, error)
	RenameCube(ctx context.Context, appID ApplicationID, oldName, newName, username string) error
	DuplicateCube(ctx context.Context, srcAppID ApplicationID, srcName string, dstAppID ApplicationID, dstName, username string) error

	CopyBranch(ctx context.Context, srcAppID, dstAppID ApplicationID, username string) (int, error)
	CopyBranchWithHistory(ctx context.Context, srcAppID, dstAppID ApplicationID, username string) (int, error)
	MoveBranch(ctx context.Context, appID ApplicationID, newVersion string, username string) (int, error)
	ReleaseCubes(ctx context.Context, appID ApplicationID, newSnapshotVersion string, username string) (int, error)
	DeleteBranch(ctx context.Context, appID ApplicationID, username string) error

	GetRevisions(ctx context.Context, appID ApplicationID, name string) ([]NCubeInfoDto, error)
	GetAppNames(ctx context.Context, tenant string) ([]string, error)
	GetVersions(ctx context.Context, tenant, app string) ([]string, error)
	GetBranches(ctx context.Context, appID ApplicationID) ([]string, error)
	Search(ctx context.Context, appID ApplicationID, opts SearchOptions) ([]NCubeInfoDto, error)

	UpdateTestData(ctx context.Context, appID ApplicationID, name string, testData []byte, username string) error
	GetTestData(ctx context.Context, appID ApplicationID, name string) ([]byte, error)
	UpdateNotes(ctx context.Context, appID ApplicationID, name, notes, username string) error
}
