// Package snapshot keeps the history of published risk datasets so that an
// operator can see what the map showed and when.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/Mindburn-Labs/riskmap/pkg/riskdata"
)

// ErrNotFound is returned when no snapshot matches.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot records one published dataset.
type Snapshot struct {
	ID        string    `json:"id"`
	Hash      string    `json:"hash"`
	Version   string    `json:"version,omitempty"`
	Source    string    `json:"source,omitempty"`
	Records   int       `json:"records"`
	CreatedAt time.Time `json:"createdAt"`
	Raw       []byte    `json:"-"`
}

// FromDataset describes ds. raw is the document it was parsed from and may
// be nil.
func FromDataset(ds *riskdata.Dataset, raw []byte) *Snapshot {
	meta := ds.Meta()
	return &Snapshot{
		ID:        uuid.NewString(),
		Hash:      ds.Hash(),
		Version:   meta.Version,
		Source:    meta.Source,
		Records:   ds.Len(),
		CreatedAt: time.Now().UTC(),
		Raw:       raw,
	}
}

// Store persists snapshots.
type Store interface {
	Init(ctx context.Context) error
	Put(ctx context.Context, s *Snapshot) error
	Get(ctx context.Context, id string) (*Snapshot, error)
	Latest(ctx context.Context) (*Snapshot, error)
	// List returns up to limit snapshots, newest first, without Raw.
	List(ctx context.Context, limit int) ([]Snapshot, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.RWMutex
	items []Snapshot
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) Init(context.Context) error { return nil }

func (m *MemoryStore) Put(_ context.Context, s *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.Raw = append([]byte(nil), s.Raw...)
	m.items = append(m.items, cp)
	sort.SliceStable(m.items, func(i, k int) bool { return newer(m.items[i], m.items[k]) })
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.items {
		if s.ID == id {
			cp := s
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) Latest(_ context.Context) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.items) == 0 {
		return nil, ErrNotFound
	}
	cp := m.items[0]
	return &cp, nil
}

func (m *MemoryStore) List(_ context.Context, limit int) ([]Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.items)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Snapshot, n)
	for i := range out {
		out[i] = m.items[i]
		out[i].Raw = nil
	}
	return out, nil
}

func newer(a, b Snapshot) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// ErrDowngrade is returned when a dataset would replace a newer one.
var ErrDowngrade = errors.New("dataset version is older than the published one")

// CheckVersion refuses to publish next over current when both carry a
// semantic version and next is lower. Unversioned datasets always pass.
func CheckVersion(current, next string) error {
	if current == "" || next == "" {
		return nil
	}
	cur, err := semver.NewVersion(current)
	if err != nil {
		return nil
	}
	nv, err := semver.NewVersion(next)
	if err != nil {
		return fmt.Errorf("dataset version %q: %w", next, err)
	}
	if nv.LessThan(cur) {
		return fmt.Errorf("%w: %s < %s", ErrDowngrade, nv, cur)
	}
	return nil
}
