package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/antchfx/xmlquery"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/clinicaltrials-harvester/internal/crawler"
	"github.com/JakeFAU/clinicaltrials-harvester/internal/datacite"
	"github.com/JakeFAU/clinicaltrials-harvester/internal/registry"
	"github.com/JakeFAU/clinicaltrials-harvester/internal/storage/memory"
	"github.com/JakeFAU/clinicaltrials-harvester/internal/transform"
)

type fakeFetcher struct {
	found map[registry.Identifier]bool
}

func (f *fakeFetcher) Fetch(_ context.Context, id registry.Identifier) (*xmlquery.Node, error) {
	if !f.found[id] {
		return nil, crawler.ErrNotFound
	}
	body := "<clinical_study><id_info><nct_id>" + string(id) + "</nct_id></id_info><brief_title>Study " + string(id) + "</brief_title></clinical_study>"
	return xmlquery.Parse(strings.NewReader(body))
}

func newCrawler(bound int, found ...registry.Identifier) *crawler.Crawler {
	f := &fakeFetcher{found: make(map[registry.Identifier]bool)}
	for _, id := range found {
		f.found[id] = true
	}
	return crawler.New(
		registry.NewSequencer(registry.DefaultPrefix, registry.DefaultWidth, 0),
		f,
		nil,
		crawler.Config{Termination: crawler.FixedBound{Limit: bound}},
		zap.NewNop(),
	)
}

type fakeTransformer struct {
	err error
}

func (f fakeTransformer) Assemble(crawler.RawRecord) (datacite.Document, error) {
	return datacite.Document{}, f.err
}

type failingSink struct{}

func (failingSink) Save(context.Context, datacite.Document) error {
	return errors.New("disk full")
}

type fakeRecorder struct {
	mu       sync.Mutex
	started  []Snapshot
	finished []Snapshot
	err      error
}

func (f *fakeRecorder) StartRun(_ context.Context, snap Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, snap)
	return f.err
}

func (f *fakeRecorder) FinishRun(ctx context.Context, snap Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	f.finished = append(f.finished, snap)
	return f.err
}

type canceledSource struct {
	cancel context.CancelFunc
	calls  int
}

func (s *canceledSource) HasMore() bool     { return true }
func (s *canceledSource) SizeEstimate() int { return 0 }

func (s *canceledSource) Advance(ctx context.Context) (crawler.RawRecord, error) {
	s.calls++
	if s.calls > 1 {
		s.cancel()
		return crawler.RawRecord{}, ctx.Err()
	}
	return crawler.RawRecord{ID: "NCT00000000", Outcome: crawler.OutcomeNotFound, Err: crawler.ErrNotFound}, nil
}

func TestWorker_Run_SuccessFlow(t *testing.T) {
	t.Parallel()

	store := memory.NewDocumentStore()
	recorder := &fakeRecorder{}
	w := New(
		newCrawler(5, "NCT00000001", "NCT00000003"),
		transform.NewAssembler(nil),
		store,
		zap.NewNop(),
		WithRecorder(recorder),
	)
	require.Equal(t, StatusPending, w.Snapshot().Status)

	snap, err := w.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, StatusSucceeded, snap.Status)
	require.Empty(t, snap.Error)
	require.NotEmpty(t, snap.RunID)
	require.Equal(t, 5, snap.SizeEstimate)
	require.Equal(t, Counters{Attempted: 5, Found: 2, NotFound: 3, Documents: 2}, snap.Counters)
	require.False(t, snap.FinishedAt.Before(snap.StartedAt))
	require.Equal(t, snap, w.Snapshot())

	docs := store.Documents()
	require.Len(t, docs, 2)
	require.Equal(t, "NCT00000001", docs[0].Identifier)
	require.Equal(t, "NCT00000003", docs[1].Identifier)

	require.Len(t, recorder.started, 1)
	require.Equal(t, StatusRunning, recorder.started[0].Status)
	require.Equal(t, snap.RunID, recorder.started[0].RunID)
	require.Equal(t, []Snapshot{snap}, recorder.finished)
}

func TestWorker_Run_DiscardsUnassembledRecords(t *testing.T) {
	t.Parallel()

	store := memory.NewDocumentStore()
	w := New(newCrawler(2, "NCT00000000", "NCT00000001"), fakeTransformer{err: transform.ErrNoRecord}, store, nil)

	snap, err := w.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, StatusFailed, snap.Status)
	require.Equal(t, "no documents were harvested", snap.Error)
	require.Equal(t, 2, snap.Counters.Discarded)
	require.Zero(t, store.Len())
}

func TestWorker_Run_SinkFailuresDoNotAbort(t *testing.T) {
	t.Parallel()

	w := New(newCrawler(3, "NCT00000000", "NCT00000002"), transform.NewAssembler(nil), failingSink{}, nil)

	snap, err := w.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, StatusFailed, snap.Status)
	require.Equal(t, Counters{Attempted: 3, Found: 2, NotFound: 1, SinkErrors: 2}, snap.Counters)
}

func TestWorker_Run_EmptyCrawl(t *testing.T) {
	t.Parallel()

	w := New(newCrawler(0), transform.NewAssembler(nil), memory.NewDocumentStore(), nil)

	snap, err := w.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusFailed, snap.Status)
	require.Zero(t, snap.Counters.Attempted)
}

func TestWorker_Run_CanceledMarksRunCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	recorder := &fakeRecorder{}
	source := &canceledSource{cancel: cancel}
	w := New(source, transform.NewAssembler(nil), memory.NewDocumentStore(), nil, WithRecorder(recorder))

	snap, err := w.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StatusCanceled, snap.Status)
	require.Equal(t, 1, snap.Counters.NotFound)
	require.Len(t, recorder.finished, 1, "finish is recorded after cancellation")
	require.Equal(t, StatusCanceled, recorder.finished[0].Status)
}

func TestWorker_Run_RecorderErrorsAreNotFatal(t *testing.T) {
	t.Parallel()

	recorder := &fakeRecorder{err: errors.New("db down")}
	w := New(newCrawler(1, "NCT00000000"), transform.NewAssembler(nil), memory.NewDocumentStore(), nil, WithRecorder(recorder))

	snap, err := w.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, StatusSucceeded, snap.Status)
}

func TestDeriveFinalStatus(t *testing.T) {
	t.Parallel()

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	testCases := []struct {
		name     string
		ctx      context.Context
		counters Counters
		runErr   error
		status   Status
		errText  string
	}{
		{"succeeded", context.Background(), Counters{Documents: 1}, nil, StatusSucceeded, ""},
		{"nothing harvested", context.Background(), Counters{}, nil, StatusFailed, "no documents were harvested"},
		{"canceled context", canceled, Counters{Documents: 3}, nil, StatusCanceled, ""},
		{"canceled error", context.Background(), Counters{}, context.Canceled, StatusCanceled, "context canceled"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			status, errText := deriveFinalStatus(tc.ctx, tc.counters, tc.runErr)
			require.Equal(t, tc.status, status)
			require.Equal(t, tc.errText, errText)
		})
	}
}
