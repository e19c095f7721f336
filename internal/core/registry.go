// Package core wires the domain's axis/cube model to a concrete Persister,
// permission engine, and cache, the way colonycore's internal/core package
// wires pkg/domain's entity model to a MemoryStore/Service pair.
package core

import (
	"context"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"ncube/pkg/domain"
)

// Registry is the process-wide facade: cube cache, branch/release
// operations, and the permission engine, all addressed through one value
// injected into request handlers rather than via ambient singletons.
type Registry struct {
	persister domain.Persister
	rules     *domain.RulesEngine
	evaluator domain.ExpressionEvaluator
	logger    Logger
	metrics   MetricsRecorder
	tracer    Tracer

	cacheMu sync.Mutex
	cache   map[string]*appCache

	permCache *permissionCache
}

// appCache is the per-ApplicationID slice of the registry cache: cube name
// (lowercased) to either a resolved cube or a "known absent" marker.
type appCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	cube   *domain.Cube
	absent bool
}

var _ domain.CubeResolver = (*Registry)(nil)
var _ domain.RuleView = (*Registry)(nil)

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithLogger overrides the registry's structured logger.
func WithLogger(l Logger) Option { return func(r *Registry) { r.logger = l } }

// WithMetrics overrides the registry's metrics recorder.
func WithMetrics(m MetricsRecorder) Option { return func(r *Registry) { r.metrics = m } }

// WithTracer overrides the registry's tracer.
func WithTracer(t Tracer) Option { return func(r *Registry) { r.tracer = t } }

// WithExpressionEvaluator supplies the evaluator used for RULE-axis cube
// lookups and permission resource expressions.
func WithExpressionEvaluator(e domain.ExpressionEvaluator) Option {
	return func(r *Registry) { r.evaluator = e }
}

// NewRegistry constructs a Registry over persister, registering the built-in
// branch/permission/lock rules on a fresh RulesEngine.
func NewRegistry(persister domain.Persister, opts ...Option) *Registry {
	r := &Registry{
		persister: persister,
		rules:     domain.NewRulesEngine(),
		logger:    NoopLogger,
		metrics:   NoopMetricsRecorder,
		tracer:    NoopTracer,
		cache:     make(map[string]*appCache),
	}
	r.permCache = newPermissionCache(30 * time.Minute)
	for _, opt := range opts {
		opt(r)
	}
	registerBuiltinRules(r.rules)
	return r
}

func (r *Registry) appCacheFor(appID domain.ApplicationID) *appCache {
	key := appID.CacheKey()
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	ac, ok := r.cache[key]
	if !ok {
		ac = &appCache{entries: make(map[string]cacheEntry)}
		r.cache[key] = ac
	}
	return ac
}

// ClearCache drops every cached entry for appID.
func (r *Registry) ClearCache(appID domain.ApplicationID) {
	r.cacheMu.Lock()
	delete(r.cache, appID.CacheKey())
	r.cacheMu.Unlock()
}

// clearAllCaches drops every app's cache, used when a sys.classpath cube
// changes (its reach is cross-application).
func (r *Registry) clearAllCaches() {
	r.cacheMu.Lock()
	r.cache = make(map[string]*appCache)
	r.cacheMu.Unlock()
}

func (r *Registry) observe(ctx context.Context, op string, start time.Time, err *error) {
	r.metrics.Observe(ctx, op, *err == nil, time.Since(start))
}

// ResolveCube loads appID/cubeName, serving from cache when possible and
// performing exactly one Persister round trip on a cold-cache miss. A
// known-absent result is memoized so repeated lookups of a missing cube do
// not repeatedly hit the Persister.
func (r *Registry) ResolveCube(appID domain.ApplicationID, cubeName string) (*domain.Cube, error) {
	return r.resolveCube(context.Background(), appID, cubeName)
}

func (r *Registry) resolveCube(ctx context.Context, appID domain.ApplicationID, cubeName string) (cube *domain.Cube, err error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "resolve_cube")
	defer func() { span.End(err); r.observe(ctx, "resolve_cube", start, &err) }()

	key := lowerKey(cubeName)
	ac := r.appCacheFor(appID)

	ac.mu.RLock()
	entry, ok := ac.entries[key]
	ac.mu.RUnlock()
	if ok {
		if entry.absent {
			return nil, domain.ErrNotFound{Resource: "cube", Name: cubeName}
		}
		return entry.cube, nil
	}

	loaded, loadErr := r.persister.LoadCube(ctx, appID, cubeName)
	ac.mu.Lock()
	defer ac.mu.Unlock()
	if _, raced := ac.entries[key]; raced {
		// Another request already populated this slot; trust it (first
		// writer wins, per the "compare-and-set put-if-absent" concurrency
		// note) rather than overwrite with our own result.
		return ac.entries[key].cube, nilIfAbsent(ac.entries[key])
	}
	if loadErr != nil {
		var nf domain.ErrNotFound
		if isNotFound(loadErr, &nf) {
			ac.entries[key] = cacheEntry{absent: true}
		}
		return nil, loadErr
	}
	ac.entries[key] = cacheEntry{cube: loaded}
	return loaded, nil
}

func nilIfAbsent(e cacheEntry) error {
	if e.absent {
		return domain.ErrNotFound{Resource: "cube", Name: ""}
	}
	return nil
}

func isNotFound(err error, target *domain.ErrNotFound) bool {
	nf, ok := err.(domain.ErrNotFound)
	if ok {
		*target = nf
	}
	return ok
}

func lowerKey(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Lookup resolves appID/cubeName and evaluates coord against it using the
// registry's configured ExpressionEvaluator.
func (r *Registry) Lookup(appID domain.ApplicationID, cubeName string, coord map[string]any) (any, *domain.RuleInfo, error) {
	return r.LookupFrom(appID, cubeName, coord, "")
}

// LookupFrom is Lookup with an explicit ruleStart: every RULE axis in the
// resolved cube resumes rule evaluation from the column named ruleStart
// instead of its first column. An empty ruleStart behaves exactly like
// Lookup.
func (r *Registry) LookupFrom(appID domain.ApplicationID, cubeName string, coord map[string]any, ruleStart string) (any, *domain.RuleInfo, error) {
	cube, err := r.resolveCube(context.Background(), appID, cubeName)
	if err != nil {
		return nil, nil, err
	}
	return cube.Lookup(coord, r.evaluator, ruleStart)
}

// mutate runs fn (a Persister-backed mutation) behind a rules evaluation and,
// on success, clears the whole cache of every app a change touches (and every
// app's cache when a change touches sys.classpath).
func (r *Registry) mutate(ctx context.Context, op string, appID domain.ApplicationID, username string, changes []domain.Change, fn func() error) (err error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, op)
	defer func() { span.End(err); r.observe(ctx, op, start, &err) }()

	res, rerr := r.rules.Evaluate(ctx, r, changes)
	if rerr != nil {
		return rerr
	}
	if res.HasBlocking() {
		return domain.RuleViolationError{Result: res}
	}
	if err = fn(); err != nil {
		return err
	}
	for _, ch := range changes {
		r.ClearCache(ch.AppID)
		if lowerKey(ch.Cube) == "sys.classpath" {
			r.clearAllCaches()
		}
	}
	r.logger.Info("ncube mutation applied", "operation", op, "app", appID.String(), "user", username, "changes", humanize.Comma(int64(len(changes))))
	return nil
}

// UpdateCube validates UPDATE permission, persists cube, and clears the
// cache of cube's app.
func (r *Registry) UpdateCube(ctx context.Context, cube *domain.Cube, username string) (domain.NCubeInfoDto, error) {
	if err := r.checkPermission(ctx, cube.AppID, cube.Name, ActionUpdate, username); err != nil {
		return domain.NCubeInfoDto{}, err
	}
	var dto domain.NCubeInfoDto
	change := domain.Change{AppID: cube.AppID, Cube: cube.Name, Action: domain.ActionUpdateCube, After: cube, Username: username}
	err := r.mutate(ctx, "update_cube", cube.AppID, username, []domain.Change{change}, func() error {
		var e error
		dto, e = r.persister.UpdateCube(ctx, cube, username)
		return e
	})
	return dto, err
}

// DeleteCubes soft-deletes names within appID.
func (r *Registry) DeleteCubes(ctx context.Context, appID domain.ApplicationID, names []string, username string) (int, error) {
	for _, name := range names {
		if err := r.checkPermission(ctx, appID, name, ActionUpdate, username); err != nil {
			return 0, err
		}
	}
	var n int
	changes := changesFor(appID, names, domain.ActionDeleteCube, username)
	err := r.mutate(ctx, "delete_cubes", appID, username, changes, func() error {
		var e error
		n, e = r.persister.DeleteCubes(ctx, appID, names, username)
		return e
	})
	return n, err
}

// RestoreCubes reactivates previously soft-deleted names.
func (r *Registry) RestoreCubes(ctx context.Context, appID domain.ApplicationID, names []string, username string) (int, error) {
	for _, name := range names {
		if err := r.checkPermission(ctx, appID, name, ActionUpdate, username); err != nil {
			return 0, err
		}
	}
	var n int
	changes := changesFor(appID, names, domain.ActionRestoreCube, username)
	err := r.mutate(ctx, "restore_cubes", appID, username, changes, func() error {
		var e error
		n, e = r.persister.RestoreCubes(ctx, appID, names, username)
		return e
	})
	return n, err
}

// RenameCube moves oldName's head to newName within appID.
func (r *Registry) RenameCube(ctx context.Context, appID domain.ApplicationID, oldName, newName, username string) error {
	if err := r.checkPermission(ctx, appID, oldName, ActionUpdate, username); err != nil {
		return err
	}
	change := domain.Change{AppID: appID, Cube: oldName, Action: domain.ActionRenameCube, Username: username}
	return r.mutate(ctx, "rename_cube", appID, username, []domain.Change{change}, func() error {
		return r.persister.RenameCube(ctx, appID, oldName, newName, username)
	})
}

// DuplicateCube copies srcName's head into dstAppID/dstName.
func (r *Registry) DuplicateCube(ctx context.Context, srcAppID domain.ApplicationID, srcName string, dstAppID domain.ApplicationID, dstName, username string) error {
	if err := r.checkPermission(ctx, dstAppID, dstName, ActionUpdate, username); err != nil {
		return err
	}
	change := domain.Change{AppID: dstAppID, Cube: dstName, Action: domain.ActionUpdateCube, Username: username}
	return r.mutate(ctx, "duplicate_cube", dstAppID, username, []domain.Change{change}, func() error {
		return r.persister.DuplicateCube(ctx, srcAppID, srcName, dstAppID, dstName, username)
	})
}

// UpdateTestData attaches test fixture bytes to appID/name.
func (r *Registry) UpdateTestData(ctx context.Context, appID domain.ApplicationID, name string, testData []byte, username string) error {
	if err := r.checkPermission(ctx, appID, name, ActionUpdate, username); err != nil {
		return err
	}
	return r.persister.UpdateTestData(ctx, appID, name, testData, username)
}

// GetTestData returns the test fixture bytes attached to appID/name.
func (r *Registry) GetTestData(ctx context.Context, appID domain.ApplicationID, name string) ([]byte, error) {
	if err := r.checkPermission(ctx, appID, name, ActionRead, username(ctx)); err != nil {
		return nil, err
	}
	return r.persister.GetTestData(ctx, appID, name)
}

// UpdateNotes overwrites appID/name's notes in place.
func (r *Registry) UpdateNotes(ctx context.Context, appID domain.ApplicationID, name, notes, username string) error {
	if err := r.checkPermission(ctx, appID, name, ActionUpdate, username); err != nil {
		return err
	}
	return r.persister.UpdateNotes(ctx, appID, name, notes, username)
}

// GetRevisions, GetAppNames, GetVersions, GetBranches, Search delegate
// straight through to the Persister: they are read paths with no cache
// involvement (the registry cache only ever holds resolved cube bodies).
func (r *Registry) GetRevisions(ctx context.Context, appID domain.ApplicationID, name string) ([]domain.NCubeInfoDto, error) {
	return r.persister.GetRevisions(ctx, appID, name)
}

func (r *Registry) GetAppNames(ctx context.Context, tenant string) ([]string, error) {
	return r.persister.GetAppNames(ctx, tenant)
}

func (r *Registry) GetVersions(ctx context.Context, tenant, app string) ([]string, error) {
	return r.persister.GetVersions(ctx, tenant, app)
}

func (r *Registry) GetBranches(ctx context.Context, appID domain.ApplicationID) ([]string, error) {
	return r.persister.GetBranches(ctx, appID)
}

func (r *Registry) Search(ctx context.Context, appID domain.ApplicationID, opts domain.SearchOptions) ([]domain.NCubeInfoDto, error) {
	return r.persister.Search(ctx, appID, opts)
}

func changesFor(appID domain.ApplicationID, names []string, action domain.Action, username string) []domain.Change {
	out := make([]domain.Change, len(names))
	for i, n := range names {
		out[i] = domain.Change{AppID: appID, Cube: n, Action: action, Username: username}
	}
	return out
}

// username extracts the caller identity the context carries, falling back to
// the configured NCUBE_PARAMS default user. Exists so read paths that don't
// take an explicit username parameter (GetTestData) still have someone to
// check permission as.
func username(ctx context.Context) string {
	if u, ok := ctx.Value(ctxUserKey{}).(string); ok && u != "" {
		return u
	}
	return Params().User
}

type ctxUserKey struct{}

// WithUser attaches the active caller identity to ctx for the lifetime of a
// request, per §5's "caller identity is bound to the request" rule.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxUserKey{}, userID)
}

// UserFromContext returns the caller identity bound to ctx, or the
// NCUBE_PARAMS default user if none was bound.
func UserFromContext(ctx context.Context) string { return username(ctx) }
