package pipeline

import (
	"errors"
	"sort"
	"testing"
	"time"
)

func TestContentHashHex_Consistency(t *testing.T) {
	data := []byte("hello world")
	h1 := ContentHashHex(data)
	h2 := ContentHashHex(data)
	if h1 != h2 {
		t.Errorf("expected identical hashes, got %q and %q", h1, h2)
	}
	// SHA-256 of "hello world" is well-known.
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if h1 != want {
		t.Errorf("expected hash %q, got %q", want, h1)
	}
}

func TestContentHashHex_EmptyInput(t *testing.T) {
	h := ContentHashHex([]byte{})
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if h != want {
		t.Errorf("expected hash %q, got %q", want, h)
	}
}

func TestNewJob(t *testing.T) {
	job := NewJob("manual.pdf", []byte("%PDF"))
	if job.Status != StatusQueued {
		t.Errorf("expected status %q, got %q", StatusQueued, job.Status)
	}
	if len(job.ID) != 26 {
		t.Errorf("expected 26-char ULID, got %q", job.ID)
	}
	if job.ContentHash != ContentHashHex([]byte("%PDF")) {
		t.Errorf("unexpected content hash %q", job.ContentHash)
	}
	if string(job.FileData()) != "%PDF" {
		t.Errorf("expected file data to be retained until processing")
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := NewJob("guide.md", []byte("# Guide"))

	transitions := []struct {
		status JobStatus
		phase  string
	}{
		{StatusReceived, "extracting"},
		{StatusTextExtracted, "splitting"},
		{StatusParentsStored, "storing"},
		{StatusChildrenStored, "storing"},
	}

	for _, tr := range transitions {
		before := job.UpdatedAt
		// Small sleep to ensure time difference is detectable.
		time.Sleep(time.Millisecond)
		job.SetStatus(tr.status, tr.phase)

		snap := job.Snapshot()
		if snap.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, snap.Status)
		}
		if snap.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, snap.Phase)
		}
		if !snap.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
		if snap.Status.Terminal() {
			t.Errorf("%q should not be terminal", snap.Status)
		}
	}

	res := &Result{DocumentName: "guide.md", ParentChunks: 1, ChildChunks: 2, Status: "success"}
	job.Complete(res)
	snap := job.Snapshot()
	if snap.Status != StatusCompleted || !snap.Status.Terminal() {
		t.Errorf("expected terminal completed status, got %q", snap.Status)
	}
	if snap.Result != res {
		t.Errorf("expected result to be recorded")
	}
	if job.FileData() != nil {
		t.Error("expected file data to be released on completion")
	}
}

func TestJob_Fail(t *testing.T) {
	job := NewJob("broken.pdf", []byte("x"))
	job.Fail("extracting", errors.New("no extractable text"))
	job.Fail("extracting", errors.New("second"))

	snap := job.Snapshot()
	if snap.Status != StatusFailed {
		t.Errorf("expected status %q, got %q", StatusFailed, snap.Status)
	}
	if len(snap.Progress.Errors) != 2 || snap.Progress.Errors[0] != "no extractable text" {
		t.Errorf("unexpected errors %v", snap.Progress.Errors)
	}
	if job.FileData() != nil {
		t.Error("expected file data to be released on failure")
	}
}

func TestJob_ProgressCounters(t *testing.T) {
	job := NewJob("doc.txt", nil)
	job.SetTotalParents(3)
	job.ParentStored()
	job.ChildrenStored(4)
	job.ParentStored()
	job.ChildrenStored(5)

	snap := job.Snapshot()
	if snap.Progress.TotalParents != 3 {
		t.Errorf("expected 3 total parents, got %d", snap.Progress.TotalParents)
	}
	if snap.Progress.ParentsStored != 2 {
		t.Errorf("expected 2 parents stored, got %d", snap.Progress.ParentsStored)
	}
	if snap.Progress.ChildrenStored != 9 {
		t.Errorf("expected 9 children stored, got %d", snap.Progress.ChildrenStored)
	}
	if snap.Status != StatusChildrenStored {
		t.Errorf("expected status %q, got %q", StatusChildrenStored, snap.Status)
	}
}

func TestJob_CountersDoNotReviveFailedJob(t *testing.T) {
	job := NewJob("doc.txt", nil)
	job.Fail("storing", errors.New("boom"))
	job.ParentStored()
	job.ChildrenStored(1)
	if s := job.Snapshot().Status; s != StatusFailed {
		t.Errorf("expected status to stay %q, got %q", StatusFailed, s)
	}
}

func TestJob_SnapshotErrorsNotNil(t *testing.T) {
	job := NewJob("snap.txt", nil)
	snap := job.Snapshot()
	if snap.Progress.Errors == nil {
		t.Error("expected non-nil errors slice in snapshot")
	}
	if len(snap.Progress.Errors) != 0 {
		t.Errorf("expected empty errors, got %d", len(snap.Progress.Errors))
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := &Job{ID: "store-1", UpdatedAt: time.Now()}
	store.Put(job)

	got := store.Get("store-1")
	if got == nil {
		t.Fatal("expected to get job back")
	}
	if got.ID != "store-1" {
		t.Errorf("expected ID %q, got %q", "store-1", got.ID)
	}
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)

	expired := &Job{ID: "old", Status: StatusCompleted, UpdatedAt: time.Now()}
	running := &Job{ID: "running", Status: StatusParentsStored, UpdatedAt: time.Now()}
	store.Put(expired)
	store.Put(running)

	time.Sleep(100 * time.Millisecond)

	fresh := &Job{ID: "new", Status: StatusFailed, UpdatedAt: time.Now()}
	store.Put(fresh)

	if n := store.Cleanup(); n != 1 {
		t.Errorf("Cleanup removed %d jobs, want 1", n)
	}
	if store.Get("old") != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get("running") == nil {
		t.Error("expected running job to survive cleanup")
	}
	if store.Get("new") == nil {
		t.Error("expected fresh job to survive cleanup")
	}
	if store.Len() != 2 {
		t.Errorf("expected 2 jobs, got %d", store.Len())
	}
}

func TestJobStore_CleanupEmpty(t *testing.T) {
	if n := NewJobStore(time.Hour).Cleanup(); n != 0 {
		t.Errorf("Cleanup on empty store removed %d", n)
	}
}

func TestGenerateULID_SortsByCreation(t *testing.T) {
	ids := make([]string, 200)
	seen := make(map[string]bool)
	for i := range ids {
		ids[i] = generateULID()
		if seen[ids[i]] {
			t.Fatalf("duplicate ID %q", ids[i])
		}
		seen[ids[i]] = true
	}
	if !sort.StringsAreSorted(ids) {
		t.Error("expected IDs to sort in creation order")
	}
}

func TestEncodeULID(t *testing.T) {
	tests := []struct {
		name string
		in   [16]byte
		want string
	}{
		{"zero", [16]byte{}, "00000000000000000000000000"},
		{"max", [16]byte{255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255, 255}, "7ZZZZZZZZZZZZZZZZZZZZZZZZZ"},
		{"one", [16]byte{15: 1}, "00000000000000000000000001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := encodeULID(tt.in); got != tt.want {
				t.Errorf("encodeULID = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestULIDSource_MonotonicWithinMillisecond(t *testing.T) {
	var s ulidSource
	now := time.UnixMilli(1_700_000_000_000)
	a := s.next(now)
	b := s.next(now)
	c := s.next(now.Add(-time.Second)) // clock stepped back
	if !(a < b && b < c) {
		t.Fatalf("expected increasing IDs, got %s %s %s", a, b, c)
	}
	if a[:10] != c[:10] {
		t.Errorf("timestamp prefix changed on clock rewind: %s vs %s", a[:10], c[:10])
	}
}

func TestIncrement(t *testing.T) {
	b := []byte{0x00, 0xff}
	if !increment(b) || b[0] != 1 || b[1] != 0 {
		t.Errorf("carry failed: %v", b)
	}
	if increment([]byte{0xff, 0xff}) {
		t.Error("expected overflow")
	}
}
