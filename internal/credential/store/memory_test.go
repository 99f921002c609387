package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certifier/internal/credential/models"
	"certifier/internal/render"
	id "certifier/pkg/domain"
	"certifier/pkg/platform/sentinel"
	"certifier/pkg/testutil"
)

type InMemorySuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *InMemorySuite) created() *models.Credential {
	c := testutil.NewCredentialBuilder().Build()
	s.Require().NoError(s.store.Create(s.ctx, c))
	return c
}

// issued walks a fresh credential through draft -> generating -> issued.
func (s *InMemorySuite) issued() *models.Credential {
	c := s.created()
	now := time.Now()
	_, err := s.store.Transition(s.ctx, c.ID, models.Transition{From: models.StatusDraft, To: models.StatusGenerating, At: now})
	s.Require().NoError(err)
	_, err = s.store.AttachArtifact(s.ctx, c.ID, render.FormatPNG, "https://cdn.test/"+c.ID.String()+".png")
	s.Require().NoError(err)
	got, err := s.store.Transition(s.ctx, c.ID, models.Transition{From: models.StatusGenerating, To: models.StatusIssued, At: now})
	s.Require().NoError(err)
	return got
}

func (s *InMemorySuite) TestCreate_RejectsDuplicateFingerprint() {
	c := s.created()
	dup := testutil.NewCredentialBuilder().WithFingerprint(c.Fingerprint).Build()
	s.ErrorIs(s.store.Create(s.ctx, dup), sentinel.ErrAlreadyExists)

	got, err := s.store.FindByFingerprint(s.ctx, c.Fingerprint)
	s.Require().NoError(err)
	s.Equal(c.ID, got.ID)
}

func (s *InMemorySuite) TestCreate_RequiresDraftAndValidFingerprint() {
	c := testutil.NewCredentialBuilder().Build()
	c.Status = models.StatusIssued
	s.ErrorIs(s.store.Create(s.ctx, c), sentinel.ErrInvalidState)

	s.Error(s.store.Create(s.ctx, testutil.NewCredentialBuilder().WithFingerprint("ABC").Build()))
}

func (s *InMemorySuite) TestTransition_Rules() {
	c := s.created()

	_, err := s.store.Transition(s.ctx, c.ID, models.Transition{From: models.StatusDraft, To: models.StatusIssued, At: time.Now()})
	s.ErrorIs(err, sentinel.ErrInvalidState, "draft cannot skip generating")

	_, err = s.store.Transition(s.ctx, c.ID, models.Transition{From: models.StatusGenerating, To: models.StatusFailed, At: time.Now()})
	s.ErrorIs(err, sentinel.ErrConflict, "from-state mismatch")

	_, err = s.store.Transition(s.ctx, c.ID, models.Transition{From: models.StatusDraft, To: models.StatusGenerating, At: time.Now()})
	s.Require().NoError(err)

	_, err = s.store.Transition(s.ctx, c.ID, models.Transition{From: models.StatusGenerating, To: models.StatusIssued, At: time.Now()})
	s.ErrorIs(err, sentinel.ErrInvalidState, "issued requires an artifact")

	_, err = s.store.Transition(s.ctx, id.NewCredentialID(), models.Transition{From: models.StatusDraft, To: models.StatusGenerating})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemorySuite) TestAttachArtifact_OnlyWhileGeneratingOrIssued() {
	c := s.created()
	_, err := s.store.AttachArtifact(s.ctx, c.ID, render.FormatPNG, "https://cdn.test/x.png")
	s.ErrorIs(err, sentinel.ErrInvalidState)

	issued := s.issued()
	got, err := s.store.AttachArtifact(s.ctx, issued.ID, render.FormatPDF, "https://cdn.test/x.pdf")
	s.Require().NoError(err)
	s.Len(got.ArtifactURLs, 2)
}

func (s *InMemorySuite) TestConcurrentRevoke_ExactlyOneWins() {
	c := s.issued()

	result := testutil.RunConcurrent(20, func(int) error {
		_, err := s.store.Transition(s.ctx, c.ID, models.Transition{
			From: models.StatusIssued, To: models.StatusRevoked, At: time.Now(),
		})
		return err
	})

	s.Equal(int32(1), result.Successes)
	s.Equal(int32(19), result.Conflicts)
	s.Zero(result.Errors)

	got, err := s.store.FindByID(s.ctx, c.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRevoked, got.Status)
	s.NotNil(got.RevokedAt)
}

func (s *InMemorySuite) TestListByTenant_NewestFirstWithTotal() {
	base := time.Now().Add(-time.Hour)
	var ids []id.CredentialID
	for i := 0; i < 5; i++ {
		c := testutil.NewCredentialBuilder().CreatedAt(base.Add(time.Duration(i) * time.Minute)).Build()
		s.Require().NoError(s.store.Create(s.ctx, c))
		ids = append(ids, c.ID)
	}
	other := testutil.NewCredentialBuilder().WithTenantID(testutil.TestIDs.TenantID2).Build()
	s.Require().NoError(s.store.Create(s.ctx, other))

	page, total, err := s.store.ListByTenant(s.ctx, testutil.TestIDs.TenantID1, models.Filter{}, models.Page{Limit: 2, Offset: 1})
	s.Require().NoError(err)
	s.Equal(5, total)
	s.Require().Len(page, 2)
	s.Equal(ids[3], page[0].ID)
	s.Equal(ids[2], page[1].ID)

	page, total, err = s.store.ListByTenant(s.ctx, testutil.TestIDs.TenantID1, models.Filter{Status: models.StatusIssued}, models.Page{})
	s.Require().NoError(err)
	s.Zero(total)
	s.Empty(page)
}

func (s *InMemorySuite) TestDownloadsAndShares() {
	c := s.issued()
	at := time.Now()

	_, err := s.store.RecordDownload(s.ctx, c.ID, at)
	s.Require().NoError(err)
	got, err := s.store.RecordDownload(s.ctx, c.ID, at)
	s.Require().NoError(err)
	s.Equal(int64(2), got.DownloadCount)
	s.Equal(at, *got.LastDownloadAt)

	got, err = s.store.AddShare(s.ctx, c.ID, models.Share{Channel: "linkedin", Recipient: "ada", SharedAt: at})
	s.Require().NoError(err)
	s.Len(got.Shares, 1)
}

func (s *InMemorySuite) TestListStuck() {
	old := testutil.NewCredentialBuilder().CreatedAt(time.Now().Add(-time.Hour)).Build()
	s.Require().NoError(s.store.Create(s.ctx, old))
	_, err := s.store.Transition(s.ctx, old.ID, models.Transition{
		From: models.StatusDraft, To: models.StatusGenerating, At: time.Now().Add(-30 * time.Minute),
	})
	s.Require().NoError(err)

	fresh := s.created()
	_, err = s.store.Transition(s.ctx, fresh.ID, models.Transition{From: models.StatusDraft, To: models.StatusGenerating, At: time.Now()})
	s.Require().NoError(err)

	stuck, err := s.store.ListStuck(s.ctx, time.Now().Add(-15*time.Minute), 10)
	s.Require().NoError(err)
	s.Require().Len(stuck, 1)
	s.Equal(old.ID, stuck[0].ID)
}
