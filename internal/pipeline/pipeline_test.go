package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/manualbot/internal/chunker"
	"github.com/dgallion1/manualbot/internal/domain"
	"github.com/dgallion1/manualbot/internal/llm/hashembed"
	"github.com/dgallion1/manualbot/internal/parser"
	"github.com/dgallion1/manualbot/internal/store"
	"github.com/dgallion1/manualbot/internal/store/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingStore captures writes and can fail PutChildren for one parent index.
type recordingStore struct {
	store.ChunkStore

	mu          sync.Mutex
	parents     []domain.ParentChunk
	children    map[uuid.UUID][]store.ChildInput
	failParent  int
	failErr     error
	parentIndex map[uuid.UUID]int
}

func newRecordingStore(inner store.ChunkStore) *recordingStore {
	return &recordingStore{
		ChunkStore:  inner,
		children:    map[uuid.UUID][]store.ChildInput{},
		parentIndex: map[uuid.UUID]int{},
		failParent:  -1,
	}
}

func (r *recordingStore) PutParent(ctx context.Context, p domain.ParentChunk) error {
	if err := r.ChunkStore.PutParent(ctx, p); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parents = append(r.parents, p)
	r.parentIndex[p.ID] = p.Metadata["chunk_index"].(int)
	return nil
}

func (r *recordingStore) PutChildren(ctx context.Context, id uuid.UUID, children []store.ChildInput) error {
	r.mu.Lock()
	idx := r.parentIndex[id]
	r.mu.Unlock()
	if idx == r.failParent {
		return r.failErr
	}
	if err := r.ChunkStore.PutChildren(ctx, id, children); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.children[id] = children
	return nil
}

func newTestPipeline(t *testing.T, maxParents int) (*Pipeline, *recordingStore) {
	t.Helper()
	emb, err := hashembed.New(64)
	require.NoError(t, err)
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "chunks.db"), 4, emb, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.EnsureSchema(context.Background()))

	rec := newRecordingStore(db)
	p, err := New(Config{
		Parent:               chunker.DefaultParentConfig(),
		Child:                chunker.DefaultChildConfig(),
		MaxConcurrentParents: maxParents,
	}, parser.Extractor{}, rec, nil, nil)
	require.NoError(t, err)
	return p, rec
}

func filler(n int) string {
	const word = "filler text "
	return strings.Repeat(word, n/len(word)+1)[:n]
}

func TestProcessDocument_FillerCounts(t *testing.T) {
	p, rec := newTestPipeline(t, 0)
	ctx := context.Background()

	res, err := p.ProcessDocument(ctx, []byte(filler(5000)), "filler.txt")
	require.NoError(t, err)

	assert.Equal(t, "filler.txt", res.DocumentName)
	assert.Equal(t, "success", res.Status)
	assert.Greater(t, res.ParentChunks, 1)
	assert.Greater(t, res.ChildChunks, res.ParentChunks)

	docs, err := rec.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, res.ParentChunks, docs[0].ParentCount)
	assert.Equal(t, res.ChildChunks, docs[0].ChildCount)
}

func TestProcessDocument_ParentCountMatchesSplitter(t *testing.T) {
	var b strings.Builder
	for i := range 60 {
		fmt.Fprintf(&b, "Step %d: tighten bolt %d to the rated torque before mounting the bracket.\n\n", i, i)
	}
	data := []byte(b.String())

	doc, err := parser.Extract(data, "steps.txt")
	require.NoError(t, err)
	want := chunker.MustNew(chunker.DefaultParentConfig()).Split(doc.Text)

	p, rec := newTestPipeline(t, 3)
	res, err := p.ProcessDocument(context.Background(), data, "steps.txt")
	require.NoError(t, err)
	assert.Equal(t, len(want), res.ParentChunks)

	require.Len(t, rec.parents, len(want))
	for _, parent := range rec.parents {
		idx := parent.Metadata["chunk_index"].(int)
		assert.Equal(t, want[idx], parent.Content)
		assert.Equal(t, len(want), parent.Metadata["total_chunks"])
		assert.Positive(t, parent.Metadata["approx_tokens"])

		children := rec.children[parent.ID]
		require.NotEmpty(t, children)
		for i, c := range children {
			assert.Contains(t, parent.Content, c.Content)
			assert.LessOrEqual(t, len([]rune(c.Content)), chunker.DefaultChildConfig().ChunkSize)
			assert.Equal(t, idx, c.Metadata["parent_index"])
			assert.Equal(t, i, c.Metadata["child_index"])
		}
	}
}

func TestProcessDocument_SectionProvenance(t *testing.T) {
	md := "# Installation\n\n" + filler(2500) + "\n\n# Maintenance\n\n" + filler(2500) + "\n"
	p, rec := newTestPipeline(t, 1)

	_, err := p.ProcessDocument(context.Background(), []byte(md), "manual.md")
	require.NoError(t, err)

	require.NotEmpty(t, rec.parents)
	first := rec.parents[0]
	require.NotNil(t, first.SectionTitle)
	assert.Equal(t, "Installation", *first.SectionTitle)
	assert.Nil(t, first.PageNumber)

	last := rec.parents[len(rec.parents)-1]
	require.NotNil(t, last.SectionTitle)
	assert.Equal(t, "Maintenance", *last.SectionTitle)
}

func TestProcessDocument_ExtractionFailureWritesNothing(t *testing.T) {
	p, rec := newTestPipeline(t, 0)
	ctx := context.Background()

	_, err := p.ProcessDocument(ctx, []byte("not a pdf"), "broken.pdf")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExtraction), "got %v", err)

	_, err = p.ProcessDocument(ctx, []byte("   \n\n  "), "blank.txt")
	assert.ErrorIs(t, err, domain.ErrExtraction)

	_, err = p.ProcessDocument(ctx, []byte("data"), "archive.zip")
	assert.ErrorIs(t, err, domain.ErrExtraction)

	docs, err := rec.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Empty(t, rec.parents)
}

func TestProcessDocument_StoreFailureFailsDocument(t *testing.T) {
	p, rec := newTestPipeline(t, 1)
	rec.failParent = 1
	rec.failErr = fmt.Errorf("%w: connection reset", domain.ErrStore)

	ctx := context.Background()
	_, err := p.ProcessDocument(ctx, []byte(filler(5000)), "partial.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStore)

	// Parents written before the failure stay persisted.
	docs, err := rec.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.GreaterOrEqual(t, docs[0].ParentCount, 2)
	assert.Len(t, rec.children, 1)
}

func TestProcessDocument_EmptyName(t *testing.T) {
	p, _ := newTestPipeline(t, 0)
	_, err := p.ProcessDocument(context.Background(), []byte("text"), " ")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNew_RejectsChildLargerThanParent(t *testing.T) {
	emb, err := hashembed.New(16)
	require.NoError(t, err)
	_, err = New(Config{
		Parent: chunker.Config{ChunkSize: 300, ChunkOverlap: 50},
		Child:  chunker.Config{ChunkSize: 300, ChunkOverlap: 50},
	}, parser.Extractor{}, sqlite.New(nil, emb, nil), nil, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = New(Config{Parent: chunker.DefaultParentConfig(), Child: chunker.DefaultChildConfig()}, nil, nil, nil, nil)
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
}

type countingObserver struct {
	mu       sync.Mutex
	statuses []JobStatus
	children int
}

func (o *countingObserver) ObserveIngest(status JobStatus, _, children int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, status)
	o.children += children
}

func TestOrchestrator_ProcessesQueuedJobs(t *testing.T) {
	emb, err := hashembed.New(32)
	require.NoError(t, err)
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "chunks.db"), 2, emb, nil)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.EnsureSchema(context.Background()))

	obs := &countingObserver{}
	p, err := New(Config{Parent: chunker.DefaultParentConfig(), Child: chunker.DefaultChildConfig()},
		parser.Extractor{}, db, obs, nil)
	require.NoError(t, err)

	o := NewOrchestrator(OrchestratorConfig{WorkerCount: 2, MaxQueueSize: 4, JobTTL: time.Hour}, p, nil)
	o.Start(context.Background())
	defer o.Stop()

	good := NewJob("guide.txt", []byte(filler(3000)))
	bad := NewJob("broken.pdf", []byte("garbage"))
	require.NoError(t, o.Submit(good))
	require.NoError(t, o.Submit(bad))

	waitTerminal := func(j *Job) JobSnapshot {
		var snap JobSnapshot
		require.Eventually(t, func() bool {
			snap = o.GetJob(j.ID).Snapshot()
			return snap.Status.Terminal()
		}, 5*time.Second, 10*time.Millisecond)
		return snap
	}

	gs := waitTerminal(good)
	assert.Equal(t, StatusCompleted, gs.Status)
	require.NotNil(t, gs.Result)
	assert.Equal(t, gs.Result.ParentChunks, gs.Progress.ParentsStored)
	assert.Equal(t, gs.Result.ChildChunks, gs.Progress.ChildrenStored)
	assert.Equal(t, gs.Result.ParentChunks, gs.Progress.TotalParents)

	bs := waitTerminal(bad)
	assert.Equal(t, StatusFailed, bs.Status)
	assert.Nil(t, bs.Result)
	assert.NotEmpty(t, bs.Progress.Errors)

	assert.Nil(t, good.FileData())
	require.Eventually(t, func() bool {
		obs.mu.Lock()
		defer obs.mu.Unlock()
		return len(obs.statuses) == 2
	}, 5*time.Second, 10*time.Millisecond)
	obs.mu.Lock()
	assert.ElementsMatch(t, []JobStatus{StatusCompleted, StatusFailed}, obs.statuses)
	obs.mu.Unlock()
}

func TestOrchestrator_QueueFull(t *testing.T) {
	p, _ := newTestPipeline(t, 0)
	// Not started: nothing drains the queue.
	o := NewOrchestrator(OrchestratorConfig{WorkerCount: 1, MaxQueueSize: 1}, p, nil)

	queued := NewJob("a.txt", []byte("a"))
	require.NoError(t, o.Submit(queued))
	overflow := NewJob("b.txt", []byte("b"))
	err := o.Submit(overflow)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, StatusFailed, overflow.Snapshot().Status)
	assert.Equal(t, 1, o.QueueDepth())

	o.Stop()
	assert.ErrorIs(t, o.Submit(NewJob("c.txt", []byte("c"))), ErrStopped)
	assert.Equal(t, StatusFailed, queued.Snapshot().Status, "queued job is failed on shutdown")
	assert.Equal(t, 0, o.QueueDepth())
}

func TestLocate(t *testing.T) {
	text := "alpha beta alpha beta gamma"
	got := locate(text, []string{"alpha beta", "alpha beta gamma", "missing"})
	assert.Equal(t, []int{0, 11, -1}, got)
}
