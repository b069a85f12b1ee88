package crawler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/location-crawler/internal/chunk"
	"github.com/JakeFAU/location-crawler/internal/location"
	"github.com/JakeFAU/location-crawler/internal/resume"
)

var errBoom = errors.New("connection reset")

type fakeFetcher struct {
	mu     sync.Mutex
	calls  []int
	found  func(idx int) bool
	failAt map[int]error
}

func (f *fakeFetcher) Fetch(_ context.Context, id location.Identifier) (location.Record, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id.Index)
	if err, ok := f.failAt[id.Index]; ok {
		return location.Record{}, false, err
	}
	if f.found != nil && !f.found(id.Index) {
		return location.Record{}, false, nil
	}
	return location.Record{
		Identifier: id.String(),
		Name:       "Place " + id.String(),
		Area:       "Area",
		Type:       id.Type,
		Index:      id.Index,
	}, true, nil
}

func (f *fakeFetcher) seen() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.calls...)
}

type fixedIDs struct{ id uuid.UUID }

func (g fixedIDs) NewRunID() (uuid.UUID, error) { return g.id, nil }

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type recorder struct {
	started  []uuid.UUID
	finished []Summary
	errs     []error
}

func (r *recorder) StartRun(_ context.Context, runID uuid.UUID, _ location.Type, _ time.Time) error {
	r.started = append(r.started, runID)
	return nil
}

func (r *recorder) FinishRun(_ context.Context, summary Summary, runErr error) error {
	r.finished = append(r.finished, summary)
	r.errs = append(r.errs, runErr)
	return errors.New("recorder unavailable")
}

type harness struct {
	store   *chunk.Store
	planner *resume.Planner
	filter  *location.Filter
}

func newHarness(t *testing.T, filter *location.Filter) *harness {
	t.Helper()
	store, err := chunk.NewStore(t.TempDir(), location.TypeStation, zap.NewNop())
	require.NoError(t, err)
	return &harness{store: store, planner: resume.New(store, filter, nil), filter: filter}
}

func (h *harness) engine(t *testing.T, cfg Config, f Fetcher) *Engine {
	t.Helper()
	if cfg.Type == "" {
		cfg.Type = location.TypeStation
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = 100
	}
	e, err := New(cfg, Deps{Fetcher: f, Store: h.store, Planner: h.planner, Filter: h.filter}, zap.NewNop())
	require.NoError(t, err)
	return e
}

func (h *harness) indices(t *testing.T, r chunk.Range) []int {
	t.Helper()
	recs, err := h.store.Load(r)
	require.NoError(t, err)
	out := make([]int, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Index)
	}
	return out
}

// all returns every stored index across chunk files in file order.
func (h *harness) all(t *testing.T) []int {
	t.Helper()
	ranges, err := h.store.List()
	require.NoError(t, err)
	var out []int
	for _, r := range ranges {
		out = append(out, h.indices(t, r)...)
	}
	return out
}

func intPtr(v int) *int { return &v }

func seq(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}

func TestRunWritesChunksUntilEnd(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	f := &fakeFetcher{found: func(idx int) bool { return idx%2 == 0 }}
	summary, err := h.engine(t, Config{EndIndex: intPtr(250)}, f).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, seq(0, 250), f.seen())
	assert.Equal(t, 3, summary.ChunksTouched)
	assert.Equal(t, 250, summary.Fetched)
	assert.Equal(t, 125, summary.Written)
	assert.Equal(t, 125, summary.Absent)
	assert.Equal(t, resume.Position{ChunkStart: 200, ScrapeIndex: 250}, summary.Final)
	assert.Equal(t, StopEndReached, summary.StopReason)

	ranges, err := h.store.List()
	require.NoError(t, err)
	require.Len(t, ranges, 3)
	assert.Equal(t, "00000000_00000099.json", ranges[0].FileName())
	assert.Equal(t, "00000200_00000299.json", ranges[2].FileName())
	for _, r := range ranges {
		for _, idx := range h.indices(t, r) {
			assert.True(t, r.Contains(idx), "index %d outside %s", idx, r)
		}
	}
	assert.Len(t, h.indices(t, ranges[2]), 25)
}

func TestRunAbortsOnFetchFailureAndResumes(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	failing := &fakeFetcher{failAt: map[int]error{10: errBoom}}
	summary, err := h.engine(t, Config{EndIndex: intPtr(100)}, failing).Run(context.Background())
	require.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "STATION^10")
	assert.Equal(t, StopFetchFailed, summary.StopReason)
	assert.Equal(t, resume.Position{ChunkStart: 0, ScrapeIndex: 10}, summary.Final)

	first := chunk.NewRange(0, 100)
	assert.Equal(t, seq(0, 10), h.indices(t, first))

	pos, err := h.planner.Plan()
	require.NoError(t, err)
	assert.Equal(t, resume.Position{ChunkStart: 0, ScrapeIndex: 10}, pos)

	healthy := &fakeFetcher{}
	summary, err = h.engine(t, Config{EndIndex: intPtr(100)}, healthy).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seq(10, 100), healthy.seen())
	assert.Equal(t, 90, summary.Written)
	assert.Equal(t, seq(0, 100), h.indices(t, first))
}

func TestRunResumesExactlyFromAnyFailedIndex(t *testing.T) {
	t.Parallel()

	var known []int
	for i := 0; i < 250; i += 3 {
		known = append(known, i)
	}
	tests := []struct {
		name   string
		filter *location.Filter
		cuts   []int
	}{
		{name: "unfiltered", cuts: []int{0, 1, 37, 99, 100, 101, 150, 199, 200, 249}},
		{name: "filtered", filter: location.NewFilter(known...), cuts: []int{0, 3, 99, 102, 198, 201, 246, 249}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			found := func(idx int) bool { return idx%4 != 1 }
			cfg := Config{EndIndex: intPtr(250), ChunkSize: 100}
			want := newHarness(t, tt.filter)
			_, err := want.engine(t, cfg, &fakeFetcher{found: found}).Run(context.Background())
			require.NoError(t, err)
			expected := want.all(t)

			for _, cut := range tt.cuts {
				h := newHarness(t, tt.filter)
				_, err := h.engine(t, cfg, &fakeFetcher{found: found, failAt: map[int]error{cut: errBoom}}).
					Run(context.Background())
				require.ErrorIs(t, err, errBoom, "cut %d", cut)

				resumed := &fakeFetcher{found: found}
				_, err = h.engine(t, cfg, resumed).Run(context.Background())
				require.NoError(t, err, "cut %d", cut)
				require.NotEmpty(t, resumed.seen(), "cut %d", cut)
				assert.LessOrEqual(t, resumed.seen()[0], cut, "cut %d", cut)
				assert.Equal(t, expected, h.all(t), "cut %d", cut)
			}
		})
	}
}

func TestRunIsIdempotentOnceComplete(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	_, err := h.engine(t, Config{EndIndex: intPtr(100)}, &fakeFetcher{}).Run(context.Background())
	require.NoError(t, err)
	path := h.store.Path(chunk.NewRange(0, 100))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	again := &fakeFetcher{}
	summary, err := h.engine(t, Config{EndIndex: intPtr(100)}, again).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again.seen())
	assert.Equal(t, StopNothingToScan, summary.StopReason)
	assert.Equal(t, resume.Position{ChunkStart: 100, ScrapeIndex: 100}, summary.Final)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRunSkipsIndicesOutsideFilter(t *testing.T) {
	t.Parallel()

	var known []int
	for i := 0; i < 10; i++ {
		if i != 5 && i != 7 {
			known = append(known, i)
		}
	}
	h := newHarness(t, location.NewFilter(known...))
	f := &fakeFetcher{}
	summary, err := h.engine(t, Config{}, f).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, known, f.seen())
	assert.Equal(t, known, h.indices(t, chunk.NewRange(0, 100)))
	assert.Equal(t, StopEndReached, summary.StopReason)
	assert.Equal(t, 1, summary.ChunksTouched)
}

func TestRunFilterBoundsScanAcrossChunks(t *testing.T) {
	t.Parallel()

	h := newHarness(t, location.NewFilter(3, 250))
	f := &fakeFetcher{}
	summary, err := h.engine(t, Config{}, f).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{3, 250}, f.seen())
	assert.Equal(t, 3, summary.ChunksTouched)
	assert.Equal(t, resume.Position{ChunkStart: 200, ScrapeIndex: 251}, summary.Final)

	pos, err := h.planner.Plan()
	require.NoError(t, err)
	assert.Equal(t, resume.Position{ChunkStart: 300, ScrapeIndex: 300}, pos)
}

func TestRunEmptyFilterScansNothing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, location.NewFilter())
	f := &fakeFetcher{}
	summary, err := h.engine(t, Config{}, f).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.seen())
	assert.Equal(t, StopNothingToScan, summary.StopReason)
}

func TestRunStopsAfterAbsentStreak(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	f := &fakeFetcher{found: func(idx int) bool { return idx < 3 }}
	summary, err := h.engine(t, Config{ChunkSize: 4, MaxConsecutiveAbsent: 5}, f).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, seq(0, 8), f.seen())
	assert.Equal(t, StopAbsentStreak, summary.StopReason)
	assert.Equal(t, resume.Position{ChunkStart: 4, ScrapeIndex: 8}, summary.Final)
	assert.Equal(t, 2, summary.ChunksTouched)
}

func TestRunExplicitStartAlignsChunk(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	f := &fakeFetcher{}
	summary, err := h.engine(t, Config{StartIndex: intPtr(150), EndIndex: intPtr(160)}, f).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, seq(150, 160), f.seen())
	assert.Equal(t, resume.Position{ChunkStart: 100, ScrapeIndex: 160}, summary.Final)
	_, err = os.Stat(filepath.Join(h.store.Dir(), "00000100_00000199.json"))
	require.NoError(t, err)
}

func TestRunReusesExistingChunkBounds(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	odd := chunk.Range{Start: 0, End: 50}
	require.NoError(t, h.store.Ensure(odd))
	require.NoError(t, h.store.Append(odd, location.Record{Identifier: "STATION^0", Type: location.TypeStation, Index: 0}))

	f := &fakeFetcher{}
	_, err := h.engine(t, Config{EndIndex: intPtr(60)}, f).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seq(1, 60), f.seen())
	assert.Equal(t, seq(0, 50), h.indices(t, odd))
	assert.Equal(t, seq(50, 60), h.indices(t, chunk.Range{Start: 50, End: 100}))
}

func TestRunExplicitStartNeverOverlapsExistingChunks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		existing chunk.Range
		start    int
		end      int
		want     []chunk.Range
	}{
		{
			name:     "start inside wider file",
			existing: chunk.Range{Start: 0, End: 200},
			start:    150, end: 160,
			want: []chunk.Range{{Start: 0, End: 200}},
		},
		{
			name:     "grid start inside earlier file",
			existing: chunk.Range{Start: 0, End: 120},
			start:    150, end: 260,
			want: []chunk.Range{{Start: 0, End: 120}, {Start: 120, End: 200}, {Start: 200, End: 300}},
		},
		{
			name:     "new chunk cut short by later file",
			existing: chunk.Range{Start: 150, End: 250},
			start:    100, end: 160,
			want: []chunk.Range{{Start: 100, End: 150}, {Start: 150, End: 250}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, nil)
			require.NoError(t, h.store.Ensure(tt.existing))
			f := &fakeFetcher{}
			_, err := h.engine(t, Config{StartIndex: intPtr(tt.start), EndIndex: intPtr(tt.end)}, f).Run(context.Background())
			require.NoError(t, err)

			ranges, err := h.store.List()
			require.NoError(t, err)
			assert.Equal(t, tt.want, ranges)
			assert.Equal(t, seq(tt.start, tt.end), h.all(t))
		})
	}
}

func TestRunHonoursLock(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	unlock, err := h.store.Lock()
	require.NoError(t, err)

	_, err = h.engine(t, Config{Lock: true, EndIndex: intPtr(1)}, &fakeFetcher{}).Run(context.Background())
	require.ErrorIs(t, err, chunk.ErrLocked)

	require.NoError(t, unlock())
	_, err = h.engine(t, Config{Lock: true, EndIndex: intPtr(1)}, &fakeFetcher{}).Run(context.Background())
	require.NoError(t, err)

	// The lock is released after the run.
	unlock, err = h.store.Lock()
	require.NoError(t, err)
	require.NoError(t, unlock())
}

func TestRunResumesPastStaleLockFile(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	_, err := h.engine(t, Config{Lock: true, EndIndex: intPtr(100)}, &fakeFetcher{failAt: map[int]error{5: errBoom}}).
		Run(context.Background())
	require.ErrorIs(t, err, errBoom)
	require.NoError(t, os.WriteFile(filepath.Join(h.store.Dir(), ".lock"), []byte("999999\n"), 0o600))

	f := &fakeFetcher{}
	summary, err := h.engine(t, Config{Lock: true, EndIndex: intPtr(100)}, f).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, seq(5, 100), f.seen())
	assert.Equal(t, StopEndReached, summary.StopReason)
	assert.Equal(t, seq(0, 100), h.indices(t, chunk.NewRange(0, 100)))
}

func TestRunStopsOnCancellation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &fakeFetcher{}
	summary, err := h.engine(t, Config{EndIndex: intPtr(10)}, f).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.seen())
	assert.Equal(t, StopCanceled, summary.StopReason)
}

func TestRunReportsToRecorder(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	rec := &recorder{}
	runID := uuid.MustParse("01890a5d-ac96-774b-bcce-b302099a8057")
	clk := &stepClock{now: time.Unix(1700000000, 0).UTC()}

	e, err := New(
		Config{Type: location.TypeStation, ChunkSize: 10, EndIndex: intPtr(3)},
		Deps{Fetcher: &fakeFetcher{failAt: map[int]error{2: errBoom}}, Store: h.store, Planner: h.planner, Clock: clk, IDs: fixedIDs{id: runID}, Recorder: rec},
		zap.NewNop(),
	)
	require.NoError(t, err)

	summary, err := e.Run(context.Background())
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, runID, summary.RunID)
	assert.Positive(t, summary.Duration)
	require.Equal(t, []uuid.UUID{runID}, rec.started)
	require.Len(t, rec.finished, 1)
	assert.Equal(t, 2, rec.finished[0].Written)
	require.ErrorIs(t, rec.errs[0], errBoom)
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	deps := Deps{Fetcher: &fakeFetcher{}, Store: h.store, Planner: h.planner}

	cases := []Config{
		{Type: "CITY", ChunkSize: 10},
		{Type: location.TypeStation},
		{Type: location.TypeStation, ChunkSize: 10, StartIndex: intPtr(-1)},
		{Type: location.TypeStation, ChunkSize: 10, StartIndex: intPtr(5), EndIndex: intPtr(4)},
		{Type: location.TypeStation, ChunkSize: 10, MaxConsecutiveAbsent: -1},
	}
	for _, cfg := range cases {
		_, err := New(cfg, deps, nil)
		require.Error(t, err, "%+v", cfg)
	}

	_, err := New(Config{Type: location.TypeStation, ChunkSize: 10}, Deps{Store: h.store, Planner: h.planner}, nil)
	require.Error(t, err)
	_, err = New(Config{Type: location.TypeStation, ChunkSize: 10}, Deps{Fetcher: &fakeFetcher{}, Store: h.store}, nil)
	require.Error(t, err)
	_, err = New(Config{Type: location.TypeStation, ChunkSize: 10, StartIndex: intPtr(0)}, Deps{Fetcher: &fakeFetcher{}, Store: h.store}, nil)
	require.NoError(t, err)
}
