// Package snapshot owns the current bundle and its derived artifacts.
// Reload cycles build everything out-of-place and publish with one
// atomic pointer swap; readers keep whatever version they grabbed and
// are never exposed to a half-built state.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/needledetector/unit-search/internal/apperr"
	"github.com/needledetector/unit-search/internal/bundle"
	"github.com/needledetector/unit-search/internal/feature"
	"github.com/needledetector/unit-search/internal/ingest"
	"github.com/needledetector/unit-search/internal/match"
	"github.com/needledetector/unit-search/internal/search"
	"github.com/needledetector/unit-search/internal/store"
	"github.com/needledetector/unit-search/internal/tabular"
)

// Bounds for similarMembers.
const (
	DefaultTop = 5
	MaxTop     = 50
)

// DefaultCacheSize is the similarity cache capacity.
const DefaultCacheSize = 512

// Snapshot is one published version: the bundle plus its derived
// matrix, all immutable.
type Snapshot struct {
	Bundle  *bundle.Bundle
	Matrix  *feature.Matrix
	Version uint64
	BuiltAt time.Time
}

type simKey struct {
	version  uint64
	memberID string
	top      int
}

// Manager coordinates reloads and serves reads. Two states: empty
// (reads fail with apperr.ErrNotLoaded) and ready. Reload attempts are
// serialized; concurrent triggers collapse into one in-flight build.
type Manager struct {
	source  ingest.TableSource
	index   store.MemberIndex
	archive *store.Archive
	logger  *slog.Logger

	loadMu  sync.Mutex
	reloads singleflight.Group

	current  atomic.Pointer[Snapshot]
	version  uint64 // guarded by loadMu
	simCache *lru.Cache[simKey, []feature.Score]
}

// Option configures a Manager.
type Option func(*Manager)

// WithSource sets the table source used by Reload.
func WithSource(src ingest.TableSource) Option {
	return func(m *Manager) { m.source = src }
}

// WithArchive enables archiving of published snapshots.
func WithArchive(a *store.Archive) Option {
	return func(m *Manager) { m.archive = a }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a manager serving reads from idx-backed search
// and the published snapshot. The manager starts empty.
func NewManager(idx store.MemberIndex, opts ...Option) *Manager {
	m := &Manager{
		index:  idx,
		logger: slog.Default(),
	}
	cache, _ := lru.New[simKey, []feature.Score](DefaultCacheSize)
	m.simCache = cache
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load runs the full ingestion cycle on the supplied tables and, on
// success, publishes the resulting snapshot. Any failure leaves the
// previously published snapshot (or the empty state) untouched.
func (m *Manager) Load(ctx context.Context, raw map[string]*tabular.Table) (*Snapshot, error) {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	started := time.Now()
	b, err := ingest.Build(raw)
	if err != nil {
		m.logger.Warn("load rejected", slog.String("error", err.Error()))
		return nil, err
	}
	matrix := feature.Build(b.Memberships)
	if err := m.index.Rebuild(ctx, search.Documents(b)); err != nil {
		m.logger.Error("index rebuild failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("rebuild member index: %w", err)
	}

	m.version++
	snap := &Snapshot{
		Bundle:  b,
		Matrix:  matrix,
		Version: m.version,
		BuiltAt: time.Now(),
	}
	m.current.Store(snap)
	m.simCache.Purge()

	if m.archive != nil {
		// The snapshot is already published; a broken archive is
		// worth a log line, not a failed reload.
		if err := m.archive.Replace(ctx, b); err != nil {
			m.logger.Warn("snapshot archive failed", slog.String("error", err.Error()))
		}
	}

	m.logger.Info("snapshot published",
		slog.Uint64("version", snap.Version),
		slog.Int("members", len(b.Members)),
		slog.Int("units", len(b.Units)),
		slog.Duration("took", time.Since(started)))
	return snap, nil
}

// Reload fetches tables from the configured source and loads them.
// Concurrent calls share a single fetch+build.
func (m *Manager) Reload(ctx context.Context) (*Snapshot, error) {
	if m.source == nil {
		return nil, fmt.Errorf("no table source configured")
	}
	v, err, _ := m.reloads.Do("reload", func() (interface{}, error) {
		tables, err := m.source.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		return m.Load(ctx, tables)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// Current returns the published snapshot, or apperr.ErrNotLoaded if no
// load has ever succeeded.
func (m *Manager) Current() (*Snapshot, error) {
	snap := m.current.Load()
	if snap == nil {
		return nil, apperr.ErrNotLoaded
	}
	return snap, nil
}

// Ready reports whether a snapshot has been published.
func (m *Manager) Ready() bool {
	return m.current.Load() != nil
}

// MatchUnits scores units against the given member set. The member
// set must be non-empty.
func (m *Manager) MatchUnits(q match.Query) ([]match.Result, error) {
	if len(q.Members) == 0 {
		return nil, fmt.Errorf("%w: member set must not be empty", apperr.ErrInvalidArgument)
	}
	snap, err := m.Current()
	if err != nil {
		return nil, err
	}
	return match.Units(snap.Bundle, q), nil
}

// SearchMembers runs keyword + facet member search against the current
// snapshot.
func (m *Manager) SearchMembers(ctx context.Context, p search.Params) ([]search.MemberResult, error) {
	snap, err := m.Current()
	if err != nil {
		return nil, err
	}
	return search.Members(ctx, snap.Bundle, m.index, p)
}

// SimilarMembers returns the top most similar members by cosine
// similarity. An unknown member id yields an empty result. Results are
// cached per (snapshot version, member, top).
func (m *Manager) SimilarMembers(memberID string, top int) ([]feature.Score, error) {
	if top == 0 {
		top = DefaultTop
	}
	if top < 1 || top > MaxTop {
		return nil, fmt.Errorf("%w: top must be between 1 and %d, got %d", apperr.ErrInvalidArgument, MaxTop, top)
	}
	snap, err := m.Current()
	if err != nil {
		return nil, err
	}

	key := simKey{version: snap.Version, memberID: memberID, top: top}
	if cached, ok := m.simCache.Get(key); ok {
		return cached, nil
	}
	scores := feature.TopSimilar(snap.Matrix, memberID, top)
	m.simCache.Add(key, scores)
	return scores, nil
}

// Unit returns one unit with its members ordered by ascending weight.
func (m *Manager) Unit(unitID string) (*bundle.Unit, error) {
	snap, err := m.Current()
	if err != nil {
		return nil, err
	}
	u, ok := snap.Bundle.Unit(unitID)
	if !ok {
		return nil, &apperr.NotFoundError{Kind: "unit", ID: unitID}
	}
	return u, nil
}

// Member returns one member's normalized record.
func (m *Manager) Member(memberID string) (*bundle.Member, error) {
	snap, err := m.Current()
	if err != nil {
		return nil, err
	}
	mem, ok := snap.Bundle.Member(memberID)
	if !ok {
		return nil, &apperr.NotFoundError{Kind: "member", ID: memberID}
	}
	return mem, nil
}

// Close releases the index and archive.
func (m *Manager) Close() error {
	err := m.index.Close()
	if m.archive != nil {
		if aerr := m.archive.Close(); err == nil {
			err = aerr
		}
	}
	return err
}
