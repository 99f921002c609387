package activity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"certifier/internal/platform/kafka/producer"
	id "certifier/pkg/domain"
	"certifier/pkg/platform/circuit"
	"certifier/pkg/requestcontext"
)

type fakeStore struct {
	mu      sync.Mutex
	entries []*Entry
	err     error
	deleted time.Time
}

func (f *fakeStore) Append(_ context.Context, e *Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeStore) Query(context.Context, id.TenantID, Filter, int, int) ([]*Entry, int, error) {
	return nil, 0, nil
}

func (f *fakeStore) DeleteBefore(_ context.Context, cutoff time.Time) (int, error) {
	f.deleted = cutoff
	return 3, nil
}

func (f *fakeStore) snapshot() []*Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Entry(nil), f.entries...)
}

type fakeProducer struct {
	mu   sync.Mutex
	msgs []*producer.Message
}

func (f *fakeProducer) ProduceAsync(msg *producer.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return nil
}

type RecorderSuite struct {
	suite.Suite
	store   *fakeStore
	metrics *Metrics
	logger  *slog.Logger
}

func TestRecorderSuite(t *testing.T) {
	suite.Run(t, new(RecorderSuite))
}

func (s *RecorderSuite) SetupTest() {
	s.store = &fakeStore{}
	s.metrics = NewMetrics(prometheus.NewRegistry())
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *RecorderSuite) TestRecord_PersistsWithClientIPAsActor() {
	sinkProducer := &fakeProducer{}
	r := NewRecorder(s.store, WithLogger(s.logger), WithMetrics(s.metrics),
		WithSink(NewKafkaSink(sinkProducer, "certifier.activity")))

	ctx := requestcontext.WithClientMetadata(context.Background(), "203.0.113.7", "curl/8")
	ctx = requestcontext.WithRequestID(ctx, "req-1")
	tenant, credential := id.NewTenantID(), id.NewCredentialID()
	r.Record(ctx, tenant, KindCredentialVerified, credential, "", map[string]any{"outcome": "valid"})
	s.Require().NoError(r.Close(context.Background()))

	entries := s.store.snapshot()
	s.Require().Len(entries, 1)
	s.Equal("203.0.113.7", entries[0].Actor)
	s.Equal(tenant, entries[0].TenantID)
	s.Equal("req-1", entries[0].Details["requestId"])
	s.Equal("valid", entries[0].Details["outcome"])

	s.Require().Len(sinkProducer.msgs, 1)
	s.Equal("certifier.activity", sinkProducer.msgs[0].Topic)
	s.Equal(tenant.String(), string(sinkProducer.msgs[0].Key))
}

func (s *RecorderSuite) TestRecord_AnonymousActor() {
	r := NewRecorder(s.store, WithLogger(s.logger))
	r.Record(context.Background(), id.NewTenantID(), KindCredentialIssued, id.NewCredentialID(), "", nil)
	s.Require().NoError(r.Close(context.Background()))

	entries := s.store.snapshot()
	s.Require().Len(entries, 1)
	s.Equal(ActorAnonymous, entries[0].Actor)
}

func (s *RecorderSuite) TestRecord_StoreFailuresAreSwallowedAndTripBreaker() {
	s.store.err = errors.New("db down")
	breaker := circuit.New("test", circuit.WithFailureThreshold(1), circuit.WithCooldown(time.Hour))
	r := NewRecorder(s.store, WithLogger(s.logger), WithMetrics(s.metrics), WithBreaker(breaker), WithWorkers(1))

	r.Record(context.Background(), id.NewTenantID(), KindCredentialIssued, id.NewCredentialID(), "tenant-admin", nil)
	s.Require().Eventually(breaker.IsOpen, time.Second, 5*time.Millisecond)

	r.Record(context.Background(), id.NewTenantID(), KindCredentialIssued, id.NewCredentialID(), "tenant-admin", nil)
	s.Require().NoError(r.Close(context.Background()))

	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Dropped.WithLabelValues("circuit_open")))
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Persisted.WithLabelValues(string(KindCredentialIssued), "error")))
}

func (s *RecorderSuite) TestRecord_AfterCloseIsDropped() {
	r := NewRecorder(s.store, WithLogger(s.logger), WithMetrics(s.metrics))
	s.Require().NoError(r.Close(context.Background()))
	s.Require().NoError(r.Close(context.Background()))

	r.Record(context.Background(), id.NewTenantID(), KindCredentialIssued, id.NewCredentialID(), "", nil)
	s.Empty(s.store.snapshot())
	s.Equal(float64(1), testutil.ToFloat64(s.metrics.Dropped.WithLabelValues("closed")))
}

func TestJanitor_UsesRetentionWindow(t *testing.T) {
	store := &fakeStore{}
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	j := NewJanitor(store, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	j.now = func() time.Time { return now }

	n, err := j.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, now.Add(-DefaultRetention), store.deleted)
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("credential_verified")
	assert.True(t, ok)
	assert.Equal(t, KindCredentialVerified, k)

	_, ok = ParseKind("user_created")
	assert.False(t, ok)
}
