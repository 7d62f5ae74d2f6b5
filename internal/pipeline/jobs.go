package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// JobStatus represents the state of a document ingestion.
type JobStatus string

const (
	StatusQueued         JobStatus = "queued"
	StatusReceived       JobStatus = "received"
	StatusTextExtracted  JobStatus = "text_extracted"
	StatusParentsStored  JobStatus = "parents_stored"
	StatusChildrenStored JobStatus = "children_stored"
	StatusCompleted      JobStatus = "completed"
	StatusFailed         JobStatus = "failed"
)

// Terminal reports whether no further transitions will happen.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job tracks the state of a single document ingestion.
type Job struct {
	mu sync.Mutex

	ID           string    `json:"job_id"`
	DocumentName string    `json:"document_name"`
	Status       JobStatus `json:"status"`
	Phase        string    `json:"phase"`
	Progress     Progress  `json:"progress"`

	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData []byte
	errors   []string
	result   *Result
}

// Progress counts chunks written so far.
type Progress struct {
	TotalParents   int      `json:"total_parents"`
	ParentsStored  int      `json:"parents_stored"`
	ChildrenStored int      `json:"children_stored"`
	Errors         []string `json:"errors"`
}

// NewJob creates a queued job carrying the raw upload.
func NewJob(documentName string, data []byte) *Job {
	now := time.Now()
	return &Job{
		ID:           generateULID(),
		DocumentName: documentName,
		Status:       StatusQueued,
		Phase:        "queued",
		ContentHash:  ContentHashHex(data),
		CreatedAt:    now,
		UpdatedAt:    now,
		fileData:     data,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes finished jobs not updated within the TTL and reports how
// many it dropped. Running jobs are kept.
func (s *JobStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	removed := 0
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := job.Status.Terminal() && now.Sub(job.UpdatedAt) > s.ttl
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// Fail records err and moves the job to StatusFailed.
func (j *Job) Fail(phase string, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err.Error())
	j.Progress.Errors = j.errors
	j.Status = StatusFailed
	j.Phase = phase
	j.UpdatedAt = time.Now()
	j.fileData = nil
}

// SetTotalParents records the parent chunk count.
func (j *Job) SetTotalParents(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.TotalParents = n
	j.UpdatedAt = time.Now()
}

// ParentStored counts one persisted parent.
func (j *Job) ParentStored() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.ParentsStored++
	if j.Status != StatusFailed {
		j.Status = StatusParentsStored
	}
	j.UpdatedAt = time.Now()
}

// ChildrenStored counts one persisted child batch of n children.
func (j *Job) ChildrenStored(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.ChildrenStored += n
	if j.Status != StatusFailed {
		j.Status = StatusChildrenStored
	}
	j.UpdatedAt = time.Now()
}

// Complete records res, marks the job done and releases the upload.
func (j *Job) Complete(res *Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.result = res
	j.Status = StatusCompleted
	j.Phase = "done"
	j.UpdatedAt = time.Now()
	j.fileData = nil
}

// FileData returns the raw file bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID           string    `json:"job_id"`
	DocumentName string    `json:"document_name"`
	Status       JobStatus `json:"status"`
	Phase        string    `json:"phase"`
	Progress     Progress  `json:"progress"`
	ContentHash  string    `json:"content_hash,omitempty"`
	Result       *Result   `json:"result,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := make([]string, len(j.Progress.Errors))
	copy(errs, j.Progress.Errors)
	p := j.Progress
	p.Errors = errs
	return JobSnapshot{
		ID:           j.ID,
		DocumentName: j.DocumentName,
		Status:       j.Status,
		Phase:        j.Phase,
		Progress:     p,
		ContentHash:  j.ContentHash,
		Result:       j.result,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
