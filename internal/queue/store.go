package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/rakheshkrishna2005/EchoStream/internal/types"
)

// RetentionPolicy bounds how long terminal jobs are kept. Completed jobs
// are purged quickly; failed jobs stay longer for diagnosis.
type RetentionPolicy struct {
	CompletedMaxAge   time.Duration
	CompletedMaxCount int
	FailedMaxAge      time.Duration
	SweepInterval     time.Duration
}

// DefaultRetention mirrors the production queue settings: completed jobs
// kept for an hour or the newest 1000, failed jobs for a day.
func DefaultRetention() RetentionPolicy {
	return RetentionPolicy{
		CompletedMaxAge:   time.Hour,
		CompletedMaxCount: 1000,
		FailedMaxAge:      24 * time.Hour,
		SweepInterval:     10 * time.Minute,
	}
}

// JobView is a job as seen through the query API.
type JobView struct {
	ID     string        `json:"id"`
	State  string        `json:"state"`
	Result *types.Result `json:"result"`
}

// Store is the durable job queue. It is the single shared mutation point
// between the router and the worker pool; per-job state transitions are
// serialized by guarded UPDATEs so no two workers claim the same job.
type Store struct {
	db        *sql.DB
	retention RetentionPolicy
	wake      chan struct{}
	stopSweep chan struct{}
}

// NewStore opens (or creates) the queue database at dbPath.
func NewStore(dbPath string, retention RetentionPolicy) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS jobs (
		job_id TEXT PRIMARY KEY,
		transcript TEXT NOT NULL DEFAULT '',
		audio_path TEXT NOT NULL DEFAULT '',
		audio_url TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		result TEXT,
		error TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state, created_at);
	`
	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create jobs table: %v", err)
	}

	return &Store{
		db:        db,
		retention: retention,
		wake:      make(chan struct{}, 1),
		stopSweep: make(chan struct{}),
	}, nil
}

// Submit durably records a job in the waiting state and returns its id.
// It never blocks on execution.
func (s *Store) Submit(payload types.Payload) (string, error) {
	jobID := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.Exec(`
	INSERT INTO jobs (job_id, transcript, audio_path, audio_url, state, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		jobID, payload.Transcript, payload.AudioPath, payload.AudioURL,
		types.StateWaiting, now, now)
	if err != nil {
		return "", fmt.Errorf("failed to submit job: %v", err)
	}

	// Nudge an idle worker without blocking the submitter.
	select {
	case s.wake <- struct{}{}:
	default:
	}

	log.Printf("Job %s submitted", jobID)
	return jobID, nil
}

// Wake returns the channel signaled on each submission.
func (s *Store) Wake() <-chan struct{} {
	return s.wake
}

// Claim atomically moves the oldest waiting job to active and returns it.
// Returns ok=false when no work is waiting. The guarded UPDATE guarantees
// a job is handed to at most one worker.
func (s *Store) Claim() (string, types.Payload, bool, error) {
	row := s.db.QueryRow(`
	SELECT job_id, transcript, audio_path, audio_url FROM jobs
	WHERE state = ? ORDER BY created_at LIMIT 1`, types.StateWaiting)

	var jobID string
	var payload types.Payload
	if err := row.Scan(&jobID, &payload.Transcript, &payload.AudioPath, &payload.AudioURL); err != nil {
		if err == sql.ErrNoRows {
			return "", types.Payload{}, false, nil
		}
		return "", types.Payload{}, false, fmt.Errorf("failed to pick job: %v", err)
	}

	res, err := s.db.Exec(`
	UPDATE jobs SET state = ?, updated_at = ? WHERE job_id = ? AND state = ?`,
		types.StateActive, time.Now().UTC(), jobID, types.StateWaiting)
	if err != nil {
		return "", types.Payload{}, false, fmt.Errorf("failed to claim job: %v", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", types.Payload{}, false, err
	}
	if affected != 1 {
		// Another worker won the race; report no work, the caller retries.
		return "", types.Payload{}, false, nil
	}

	return jobID, payload, true, nil
}

// Complete attaches the result and marks the job completed. The state
// guard keeps terminal transitions single-shot.
func (s *Store) Complete(jobID string, result types.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %v", err)
	}

	_, err = s.db.Exec(`
	UPDATE jobs SET state = ?, result = ?, updated_at = ? WHERE job_id = ? AND state = ?`,
		types.StateCompleted, string(data), time.Now().UTC(), jobID, types.StateActive)
	if err != nil {
		return fmt.Errorf("failed to complete job: %v", err)
	}
	return nil
}

// Fail records the error and marks the job failed. No automatic retry:
// attempts are fixed at one.
func (s *Store) Fail(jobID, errMsg string) error {
	_, err := s.db.Exec(`
	UPDATE jobs SET state = ?, error = ?, updated_at = ? WHERE job_id = ? AND state IN (?, ?)`,
		types.StateFailed, errMsg, time.Now().UTC(), jobID, types.StateWaiting, types.StateActive)
	if err != nil {
		return fmt.Errorf("failed to fail job: %v", err)
	}
	return nil
}

// State returns the job's externally observed state.
func (s *Store) State(jobID string) (string, error) {
	row := s.db.QueryRow(`SELECT state FROM jobs WHERE job_id = ?`, jobID)
	var state string
	if err := row.Scan(&state); err != nil {
		if err == sql.ErrNoRows {
			return "", types.ErrJobNotFound
		}
		return "", fmt.Errorf("failed to query job state: %v", err)
	}
	return state, nil
}

// Get returns the job's state and result. An unknown id, whether purged
// or never submitted, yields ErrJobNotFound.
func (s *Store) Get(jobID string) (JobView, error) {
	row := s.db.QueryRow(`SELECT job_id, state, result FROM jobs WHERE job_id = ?`, jobID)

	var view JobView
	var result sql.NullString
	if err := row.Scan(&view.ID, &view.State, &result); err != nil {
		if err == sql.ErrNoRows {
			return JobView{}, types.ErrJobNotFound
		}
		return JobView{}, fmt.Errorf("failed to query job: %v", err)
	}

	if result.Valid {
		var r types.Result
		if err := json.Unmarshal([]byte(result.String), &r); err != nil {
			return JobView{}, fmt.Errorf("failed to parse job result: %v", err)
		}
		view.Result = &r
	}
	return view, nil
}

// StartRetention begins the periodic purge of terminal jobs.
func (s *Store) StartRetention() {
	interval := s.retention.SweepInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stopSweep:
				ticker.Stop()
				return
			}
		}
	}()

	log.Printf("Queue retention started (completed: %s / %d newest, failed: %s)",
		s.retention.CompletedMaxAge, s.retention.CompletedMaxCount, s.retention.FailedMaxAge)
}

// sweep applies the retention policy once.
func (s *Store) sweep() {
	now := time.Now().UTC()

	if s.retention.CompletedMaxAge > 0 {
		cutoff := now.Add(-s.retention.CompletedMaxAge)
		if _, err := s.db.Exec(`DELETE FROM jobs WHERE state = ? AND updated_at < ?`,
			types.StateCompleted, cutoff); err != nil {
			log.Printf("Retention purge (completed age) failed: %v", err)
		}
	}

	if s.retention.CompletedMaxCount > 0 {
		if _, err := s.db.Exec(`
		DELETE FROM jobs WHERE state = ? AND job_id NOT IN (
			SELECT job_id FROM jobs WHERE state = ? ORDER BY updated_at DESC LIMIT ?
		)`, types.StateCompleted, types.StateCompleted, s.retention.CompletedMaxCount); err != nil {
			log.Printf("Retention purge (completed count) failed: %v", err)
		}
	}

	if s.retention.FailedMaxAge > 0 {
		cutoff := now.Add(-s.retention.FailedMaxAge)
		if _, err := s.db.Exec(`DELETE FROM jobs WHERE state = ? AND updated_at < ?`,
			types.StateFailed, cutoff); err != nil {
			log.Printf("Retention purge (failed age) failed: %v", err)
		}
	}
}

// Close stops retention and closes the database.
func (s *Store) Close() error {
	close(s.stopSweep)
	return s.db.Close()
}
