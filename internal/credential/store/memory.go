package store

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"certifier/internal/credential/models"
	"certifier/internal/fingerprint"
	"certifier/internal/render"
	id "certifier/pkg/domain"
	"certifier/pkg/platform/sentinel"
	pkgsync "certifier/pkg/platform/sync"
)

// InMemory keeps credentials in maps. The index maps are guarded by mu;
// mutations of a single record are serialized by a sharded per-credential lock.
type InMemory struct {
	mu            sync.RWMutex
	records       map[id.CredentialID]*models.Credential
	byFingerprint map[string]id.CredentialID
	locks         *pkgsync.KeyedMutex[id.CredentialID]
}

func NewInMemory() *InMemory {
	return &InMemory{
		records:       make(map[id.CredentialID]*models.Credential),
		byFingerprint: make(map[string]id.CredentialID),
		locks:         pkgsync.NewKeyedMutex[id.CredentialID](0),
	}
}

func (s *InMemory) Create(_ context.Context, c *models.Credential) error {
	if c == nil {
		return fmt.Errorf("credential is required")
	}
	if !fingerprint.Valid(c.Fingerprint) {
		return fmt.Errorf("credential fingerprint is malformed")
	}
	if c.Status != models.StatusDraft {
		return sentinel.ErrInvalidState
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byFingerprint[c.Fingerprint]; ok {
		return sentinel.ErrAlreadyExists
	}
	if _, ok := s.records[c.ID]; ok {
		return sentinel.ErrAlreadyExists
	}
	s.records[c.ID] = c.Clone()
	s.byFingerprint[c.Fingerprint] = c.ID
	return nil
}

func (s *InMemory) lookup(credentialID id.CredentialID) (*models.Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.records[credentialID]
	return c, ok
}

// mutate runs fn on the stored record under its shard lock and returns a copy
// of the result.
func (s *InMemory) mutate(credentialID id.CredentialID, fn func(c *models.Credential) error) (*models.Credential, error) {
	c, ok := s.lookup(credentialID)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	unlock := s.locks.Lock(credentialID)
	defer unlock()
	if err := fn(c); err != nil {
		return nil, err
	}
	return c.Clone(), nil
}

func (s *InMemory) read(c *models.Credential) *models.Credential {
	unlock := s.locks.Lock(c.ID)
	defer unlock()
	return c.Clone()
}

func (s *InMemory) FindByID(_ context.Context, credentialID id.CredentialID) (*models.Credential, error) {
	c, ok := s.lookup(credentialID)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.read(c), nil
}

func (s *InMemory) FindByFingerprint(_ context.Context, fp string) (*models.Credential, error) {
	s.mu.RLock()
	credentialID, ok := s.byFingerprint[fp]
	var c *models.Credential
	if ok {
		c = s.records[credentialID]
	}
	s.mu.RUnlock()
	if c == nil {
		return nil, sentinel.ErrNotFound
	}
	return s.read(c), nil
}

func (s *InMemory) ListByTenant(_ context.Context, tenantID id.TenantID, filter models.Filter, page models.Page) ([]*models.Credential, int, error) {
	page = page.Normalize()
	s.mu.RLock()
	var matched []*models.Credential
	for _, c := range s.records {
		if c.TenantID != tenantID {
			continue
		}
		snapshot := s.read(c)
		if filter.Matches(snapshot) {
			matched = append(matched, snapshot)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *models.Credential) int {
		if n := b.CreatedAt.Compare(a.CreatedAt); n != 0 {
			return n
		}
		return cmp.Compare(b.ID.String(), a.ID.String())
	})
	total := len(matched)
	if page.Offset >= total {
		return []*models.Credential{}, total, nil
	}
	end := min(page.Offset+page.Limit, total)
	return matched[page.Offset:end], total, nil
}

func (s *InMemory) Transition(_ context.Context, credentialID id.CredentialID, t models.Transition) (*models.Credential, error) {
	if !models.CanTransition(t.From, t.To) {
		return nil, sentinel.ErrInvalidState
	}
	return s.mutate(credentialID, func(c *models.Credential) error {
		if c.Status != t.From {
			return sentinel.ErrConflict
		}
		if t.To == models.StatusIssued && !c.HasArtifact() {
			return sentinel.ErrInvalidState
		}
		t.Apply(c)
		return nil
	})
}

func (s *InMemory) AttachArtifact(_ context.Context, credentialID id.CredentialID, format render.Format, url string) (*models.Credential, error) {
	return s.mutate(credentialID, func(c *models.Credential) error {
		if c.Status != models.StatusGenerating && c.Status != models.StatusIssued {
			return sentinel.ErrInvalidState
		}
		urls := maps.Clone(c.ArtifactURLs)
		if urls == nil {
			urls = make(map[render.Format]string)
		}
		urls[format] = url
		c.ArtifactURLs = urls
		return nil
	})
}

func (s *InMemory) RecordDownload(_ context.Context, credentialID id.CredentialID, at time.Time) (*models.Credential, error) {
	return s.mutate(credentialID, func(c *models.Credential) error {
		c.DownloadCount++
		c.LastDownloadAt = &at
		return nil
	})
}

func (s *InMemory) AddShare(_ context.Context, credentialID id.CredentialID, share models.Share) (*models.Credential, error) {
	return s.mutate(credentialID, func(c *models.Credential) error {
		c.Shares = append(slices.Clone(c.Shares), share)
		return nil
	})
}

func (s *InMemory) ListStuck(_ context.Context, cutoff time.Time, limit int) ([]*models.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stuck []*models.Credential
	for _, c := range s.records {
		snapshot := s.read(c)
		if snapshot.Status == models.StatusGenerating && snapshot.UpdatedAt.Before(cutoff) {
			stuck = append(stuck, snapshot)
		}
	}
	slices.SortFunc(stuck, func(a, b *models.Credential) int { return a.UpdatedAt.Compare(b.UpdatedAt) })
	if limit > 0 && len(stuck) > limit {
		stuck = stuck[:limit]
	}
	return stuck, nil
}
