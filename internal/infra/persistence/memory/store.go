// Package memory provides an in-memory implementation of the cube
// persistence port used for tests and ephemeral environments, and as the
// embedded state engine wrapped by the sqlite and postgres stores.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"ncube/pkg/domain"
)

var _ domain.Persister = (*Store)(nil)

// record is one stored revision of a cube. Revisions accumulate; the latest
// revision for a key is the one operations read and write against.
type record struct {
	ID         int64
	AppID      domain.ApplicationID
	Name       string
	Revision   int64
	Cube       *domain.Cube
	Sha1       string
	HeadSha1   string
	CreateDate time.Time
	CreateHid  string
	Notes      string
	Active     bool
}

func (r *record) dto() domain.NCubeInfoDto {
	return domain.NCubeInfoDto{
		ID:         r.ID,
		Tenant:     r.AppID.Tenant,
		App:        r.AppID.App,
		Version:    r.AppID.Version,
		Status:     r.AppID.Status,
		Branch:     r.AppID.Branch,
		Name:       r.Name,
		Revision:   r.Revision,
		Sha1:       r.Sha1,
		HeadSha1:   r.HeadSha1,
		CreateDate: r.CreateDate,
		CreateHid:  r.CreateHid,
		Notes:      r.Notes,
		Changed:    r.Active,
	}
}

// Store is the embedded, in-process Persister. The sqlite and postgres
// stores wrap one of these and persist JSON snapshots of its exported state
// after every mutating call.
type Store struct {
	mu       sync.RWMutex
	nextID   int64
	history  map[string][]*record // cubeKey -> revisions, oldest first
	testData map[string][]byte
}

// NewStore constructs an empty in-memory Persister.
func NewStore() *Store {
	return &Store{
		history:  make(map[string][]*record),
		testData: make(map[string][]byte),
	}
}

func cubeKey(appID domain.ApplicationID, name string) string {
	return appID.CacheKey() + "/" + strings.ToLower(name)
}

func (s *Store) latest(key string) *record {
	revs := s.history[key]
	if len(revs) == 0 {
		return nil
	}
	return revs[len(revs)-1]
}

func (s *Store) append(key string, r *record) {
	s.nextID++
	r.ID = s.nextID
	r.Revision = int64(len(s.history[key]) + 1)
	r.CreateDate = time.Now().UTC()
	s.history[key] = append(s.history[key], r)
}

// LoadCube returns the latest active revision of appID/name.
func (s *Store) LoadCube(_ context.Context, appID domain.ApplicationID, name string) (*domain.Cube, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec := s.latest(cubeKey(appID, name))
	if rec == nil || !rec.Active {
		return nil, domain.ErrNotFound{Resource: "cube", Name: name}
	}
	return rec.Cube, nil
}

// LoadCubeByID scans every key's history for a matching revision id.
func (s *Store) LoadCubeByID(_ context.Context, id int64) (*domain.Cube, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, revs := range s.history {
		for _, rec := range revs {
			if rec.ID == id {
				return rec.Cube, nil
			}
		}
	}
	return nil, domain.ErrNotFound{Resource: "cube revision", Name: fmt.Sprintf("%d", id)}
}

// UpdateCube stores cube as the next revision of its (appID, name) key.
func (s *Store) UpdateCube(_ context.Context, cube *domain.Cube, username string) (domain.NCubeInfoDto, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := cubeKey(cube.AppID, cube.Name)
	rec := &record{
		AppID:     cube.AppID,
		Name:      cube.Name,
		Cube:      cube,
		Sha1:      cube.Sha1(),
		CreateHid: username,
		Active:    true,
	}
	if prev := s.latest(key); prev != nil {
		rec.HeadSha1 = prev.Sha1
	}
	s.append(key, rec)
	return rec.dto(), nil
}

// DeleteCubes soft-deletes names within appID by appending an inactive
// revision for each, leaving prior history intact for RestoreCubes.
func (s *Store) DeleteCubes(_ context.Context, appID domain.ApplicationID, names []string, username string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, name := range names {
		key := cubeKey(appID, name)
		prev := s.latest(key)
		if prev == nil || !prev.Active {
			continue
		}
		s.append(key, &record{AppID: appID, Name: name, Cube: prev.Cube, Sha1: prev.Sha1, CreateHid: username, Active: false})
		count++
	}
	return count, nil
}

// RestoreCubes reactivates names previously removed by DeleteCubes.
func (s *Store) RestoreCubes(_ context.Context, appID domain.ApplicationID, names []string, username string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, name := range names {
		key := cubeKey(appID, name)
		prev := s.latest(key)
		if prev == nil || prev.Active {
			continue
		}
		s.append(key, &record{AppID: appID, Name: name, Cube: prev.Cube, Sha1: prev.Sha1, CreateHid: username, Active: true})
		count++
	}
	return count, nil
}

// RenameCube moves a cube's active head to a new name, tombstoning the old
// name and seeding a fresh history under the new one.
func (s *Store) RenameCube(_ context.Context, appID domain.ApplicationID, oldName, newName, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	oldKey := cubeKey(appID, oldName)
	prev := s.latest(oldKey)
	if prev == nil || !prev.Active {
		return domain.ErrNotFound{Resource: "cube", Name: oldName}
	}
	newKey := cubeKey(appID, newName)
	if existing := s.latest(newKey); existing != nil && existing.Active {
		return domain.IllegalArgumentError{Message: fmt.Sprintf("cube %s already exists", newName)}
	}
	renamed := prev.Cube.Clone()
	renamed.Name = newName
	s.append(oldKey, &record{AppID: appID, Name: oldName, Cube: prev.Cube, Sha1: prev.Sha1, CreateHid: username, Active: false})
	s.append(newKey, &record{AppID: appID, Name: newName, Cube: renamed, Sha1: renamed.Sha1(), CreateHid: username, Active: true})
	return nil
}

// DuplicateCube copies srcName's active body into dstAppID/dstName as a new
// history.
func (s *Store) DuplicateCube(_ context.Context, srcAppID domain.ApplicationID, srcName string, dstAppID domain.ApplicationID, dstName, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.latest(cubeKey(srcAppID, srcName))
	if src == nil || !src.Active {
		return domain.ErrNotFound{Resource: "cube", Name: srcName}
	}
	dup := src.Cube.Clone()
	dup.Name = dstName
	dup.AppID = dstAppID
	s.append(cubeKey(dstAppID, dstName), &record{AppID: dstAppID, Name: dstName, Cube: dup, Sha1: dup.Sha1(), CreateHid: username, Active: true})
	return nil
}

// CopyBranch copies every active cube's current head from srcAppID into
// dstAppID, discarding history.
func (s *Store) CopyBranch(ctx context.Context, srcAppID, dstAppID domain.ApplicationID, username string) (int, error) {
	return s.copyBranch(ctx, srcAppID, dstAppID, username, false)
}

// CopyBranchWithHistory copies the full revision history of every cube whose
// head revision is active from srcAppID into dstAppID.
func (s *Store) CopyBranchWithHistory(ctx context.Context, srcAppID, dstAppID domain.ApplicationID, username string) (int, error) {
	return s.copyBranch(ctx, srcAppID, dstAppID, username, true)
}

func (s *Store) copyBranch(_ context.Context, srcAppID, dstAppID domain.ApplicationID, username string, withHistory bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := srcAppID.CacheKey() + "/"
	count := 0
	for key, revs := range s.history {
		if !strings.HasPrefix(key, prefix) || len(revs) == 0 {
			continue
		}
		head := revs[len(revs)-1]
		if !head.Active {
			continue
		}
		dstKey := cubeKey(dstAppID, head.Name)
		if withHistory {
			for _, rec := range revs {
				cp := rec.Cube.Clone()
				cp.AppID = dstAppID
				s.append(dstKey, &record{AppID: dstAppID, Name: rec.Name, Cube: cp, Sha1: cp.Sha1(), CreateHid: username, Active: rec.Active})
			}
		} else {
			cp := head.Cube.Clone()
			cp.AppID = dstAppID
			s.append(dstKey, &record{AppID: dstAppID, Name: head.Name, Cube: cp, Sha1: cp.Sha1(), CreateHid: username, Active: true})
		}
		count++
	}
	return count, nil
}

// MoveBranch relocates every active cube at appID to the same tenant/app with
// a new version, preserving status and branch. Only each cube's head revision
// moves (as a new revision at the destination); cubes whose head is inactive
// stay at appID.
func (s *Store) MoveBranch(_ context.Context, appID domain.ApplicationID, newVersion, username string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := appID.CacheKey() + "/"
	dstAppID := appID.WithVersion(newVersion)
	count := 0
	for key, revs := range s.history {
		if !strings.HasPrefix(key, prefix) || len(revs) == 0 {
			continue
		}
		head := revs[len(revs)-1]
		if !head.Active {
			continue
		}
		dstKey := cubeKey(dstAppID, head.Name)
		moved := head.Cube.Clone()
		moved.AppID = dstAppID
		s.append(dstKey, &record{AppID: dstAppID, Name: head.Name, Cube: moved, Sha1: moved.Sha1(), CreateHid: username, Active: true})
		delete(s.history, key)
		count++
	}
	return count, nil
}

// ReleaseCubes freezes appID's active cubes into a RELEASE version matching
// its current version, then advances appID's branch to newSnapshotVersion.
func (s *Store) ReleaseCubes(ctx context.Context, appID domain.ApplicationID, newSnapshotVersion, username string) (int, error) {
	releaseAppID := appID.AsRelease()
	count, err := s.copyBranch(ctx, appID, releaseAppID, username, true)
	if err != nil {
		return 0, err
	}
	if _, err := s.MoveBranch(ctx, appID, newSnapshotVersion, username); err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteBranch removes every cube key stored at appID.
func (s *Store) DeleteBranch(_ context.Context, appID domain.ApplicationID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := appID.CacheKey() + "/"
	for key := range s.history {
		if strings.HasPrefix(key, prefix) {
			delete(s.history, key)
		}
	}
	return nil
}

// GetRevisions returns every stored revision of appID/name, oldest first.
func (s *Store) GetRevisions(_ context.Context, appID domain.ApplicationID, name string) ([]domain.NCubeInfoDto, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	revs := s.history[cubeKey(appID, name)]
	out := make([]domain.NCubeInfoDto, 0, len(revs))
	for _, r := range revs {
		out = append(out, r.dto())
	}
	return out, nil
}

// GetAppNames lists every distinct app name stored for tenant.
func (s *Store) GetAppNames(_ context.Context, tenant string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]bool{}
	for _, revs := range s.history {
		if len(revs) == 0 {
			continue
		}
		head := revs[len(revs)-1]
		if strings.EqualFold(head.AppID.Tenant, tenant) {
			seen[head.AppID.App] = true
		}
	}
	return sortedKeys(seen), nil
}

// GetVersions lists every distinct version stored for tenant/app.
func (s *Store) GetVersions(_ context.Context, tenant, app string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]bool{}
	for _, revs := range s.history {
		if len(revs) == 0 {
			continue
		}
		head := revs[len(revs)-1]
		if strings.EqualFold(head.AppID.Tenant, tenant) && strings.EqualFold(head.AppID.App, app) {
			seen[head.AppID.Version] = true
		}
	}
	return sortedKeys(seen), nil
}

// GetBranches lists every distinct branch stored for appID's tenant/app/
// version/status.
func (s *Store) GetBranches(_ context.Context, appID domain.ApplicationID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]bool{}
	for _, revs := range s.history {
		if len(revs) == 0 {
			continue
		}
		h := revs[len(revs)-1].AppID
		if strings.EqualFold(h.Tenant, appID.Tenant) && strings.EqualFold(h.App, appID.App) &&
			strings.EqualFold(h.Version, appID.Version) && h.Status == appID.Status {
			seen[h.Branch] = true
		}
	}
	return sortedKeys(seen), nil
}

// Search returns head info for every cube under appID matching opts: by
// name pattern, by active/deleted/changed state, and by serialized-content
// substring, optionally attaching the cube body, test data, and notes the
// include* flags request.
func (s *Store) Search(_ context.Context, appID domain.ApplicationID, opts domain.SearchOptions) ([]domain.NCubeInfoDto, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	prefix := appID.CacheKey() + "/"
	var out []domain.NCubeInfoDto
	for key, revs := range s.history {
		if !strings.HasPrefix(key, prefix) || len(revs) == 0 {
			continue
		}
		head := revs[len(revs)-1]
		if opts.DeletedRecordsOnly {
			if head.Active {
				continue
			}
		} else if opts.ActiveOnly && !head.Active {
			continue
		}
		if opts.ChangedRecordsOnly && head.Sha1 == head.HeadSha1 {
			continue
		}
		if opts.CubeNamePattern != "" {
			if opts.ExactMatchName {
				if !strings.EqualFold(head.Name, opts.CubeNamePattern) {
					continue
				}
			} else if !strings.Contains(strings.ToLower(head.Name), strings.ToLower(opts.CubeNamePattern)) {
				continue
			}
		}

		var cubeJSON []byte
		if opts.ContentPattern != "" || opts.IncludeCubeData {
			data, err := head.Cube.MarshalJSON()
			if err != nil {
				return nil, err
			}
			cubeJSON = data
		}
		if opts.ContentPattern != "" && !strings.Contains(strings.ToLower(string(cubeJSON)), strings.ToLower(opts.ContentPattern)) {
			continue
		}

		dto := head.dto()
		if !opts.IncludeNotes {
			dto.Notes = ""
		}
		if opts.IncludeCubeData {
			dto.CubeData = cubeJSON
		}
		if opts.IncludeTestData {
			dto.TestData = s.testData[key]
		}
		out = append(out, dto)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// UpdateTestData stores testData alongside appID/name, independent of the
// cube's own revision history.
func (s *Store) UpdateTestData(_ context.Context, appID domain.ApplicationID, name string, testData []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.testData[cubeKey(appID, name)] = testData
	return nil
}

// GetTestData returns the test data previously stored for appID/name.
func (s *Store) GetTestData(_ context.Context, appID domain.ApplicationID, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.testData[cubeKey(appID, name)], nil
}

// UpdateNotes overwrites the latest revision's notes in place, without
// bumping the revision counter.
func (s *Store) UpdateNotes(_ context.Context, appID domain.ApplicationID, name, notes, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.latest(cubeKey(appID, name))
	if rec == nil {
		return domain.ErrNotFound{Resource: "cube", Name: name}
	}
	rec.Notes = notes
	return nil
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Snapshot is a point-in-time export of every stored revision, used by the
// sqlite and postgres stores to persist and rehydrate state.
type Snapshot struct {
	Records  map[string][]SnapshotRecord `json:"records"`
	TestData map[string][]byte           `json:"testData"`
}

// SnapshotRecord is the JSON-serializable shape of a record, carrying the
// cube body through domain.Cube's own JSON codec.
type SnapshotRecord struct {
	ID         int64                `json:"id"`
	AppID      domain.ApplicationID `json:"appId"`
	Name       string               `json:"name"`
	Revision   int64                `json:"revision"`
	Cube       *domain.Cube         `json:"cube"`
	Sha1       string               `json:"sha1"`
	HeadSha1   string               `json:"headSha1"`
	CreateDate time.Time            `json:"createDate"`
	CreateHid  string               `json:"createHid"`
	Notes      string               `json:"notes"`
	Active     bool                 `json:"active"`
}

// ExportState snapshots the entire store for persistence by a wrapping
// driver.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Records:  make(map[string][]SnapshotRecord, len(s.history)),
		TestData: make(map[string][]byte, len(s.testData)),
	}
	for key, revs := range s.history {
		list := make([]SnapshotRecord, 0, len(revs))
		for _, r := range revs {
			list = append(list, SnapshotRecord{
				ID: r.ID, AppID: r.AppID, Name: r.Name, Revision: r.Revision, Cube: r.Cube,
				Sha1: r.Sha1, HeadSha1: r.HeadSha1, CreateDate: r.CreateDate,
				CreateHid: r.CreateHid, Notes: r.Notes, Active: r.Active,
			})
		}
		snap.Records[key] = list
	}
	for key, data := range s.testData {
		snap.TestData[key] = data
	}
	return snap
}

// ImportState replaces the store's contents with snap, used when a wrapping
// driver rehydrates from a durable snapshot at startup.
func (s *Store) ImportState(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = make(map[string][]*record, len(snap.Records))
	var maxID int64
	for key, list := range snap.Records {
		revs := make([]*record, 0, len(list))
		for _, sr := range list {
			rec := &record{
				ID: sr.ID, AppID: sr.AppID, Name: sr.Name, Revision: sr.Revision, Cube: sr.Cube,
				Sha1: sr.Sha1, HeadSha1: sr.HeadSha1, CreateDate: sr.CreateDate,
				CreateHid: sr.CreateHid, Notes: sr.Notes, Active: sr.Active,
			}
			if rec.ID > maxID {
				maxID = rec.ID
			}
			revs = append(revs, rec)
		}
		s.history[key] = revs
	}
	s.nextID = maxID
	s.testData = make(map[string][]byte, len(snap.TestData))
	for key, data := range snap.TestData {
		s.testData[key] = data
	}
}
