package download

import (
	"sync"

	"github.com/google/uuid"

	"github.com/bilifetch/bilifetch"
)

type JobID string

func NewJobID() JobID {
	return JobID(uuid.NewString())
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusRetrying   Status = "retrying"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Job is one part's download: the negotiated stream pair fetched to two local
// files. Only the Downloader mutates a Job, and Completed/Failed are
// terminal.
type Job struct {
	ID        JobID
	Part      int
	Pair      bilifetch.NegotiatedPair
	VideoPath string
	AudioPath string

	mu       sync.Mutex
	status   Status
	attempts int
}

func NewJob(part int, pair bilifetch.NegotiatedPair, videoPath, audioPath string) *Job {
	return &Job{
		ID:        NewJobID(),
		Part:      part,
		Pair:      pair,
		VideoPath: videoPath,
		AudioPath: audioPath,
		status:    StatusPending,
	}
}

func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *Job) Attempts() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.attempts
}

func (j *Job) setStatus(s Status) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status == StatusCompleted || j.status == StatusFailed {
		return
	}
	j.status = s
}

func (j *Job) bumpAttempts() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attempts++
}
