package queue

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rakheshkrishna2005/EchoStream/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "queue.db"), DefaultRetention())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSubmitReportsWaitingImmediately(t *testing.T) {
	store := newTestStore(t)

	jobID, err := store.Submit(types.Payload{Transcript: "hello"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if jobID == "" {
		t.Fatal("expected a job id")
	}

	state, err := store.State(jobID)
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if state != types.StateWaiting {
		t.Errorf("expected waiting immediately after submit, got %s", state)
	}
}

func TestClaimIsExclusive(t *testing.T) {
	store := newTestStore(t)

	jobID, err := store.Submit(types.Payload{Transcript: "one"})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	claimedID, payload, ok, err := store.Claim()
	if err != nil || !ok {
		t.Fatalf("first claim failed: ok=%v err=%v", ok, err)
	}
	if claimedID != jobID || payload.Transcript != "one" {
		t.Errorf("claim returned wrong job: %s %+v", claimedID, payload)
	}

	// The job is now active; a second claim finds nothing.
	if _, _, ok, err := store.Claim(); err != nil || ok {
		t.Errorf("second claim must find no work: ok=%v err=%v", ok, err)
	}

	state, _ := store.State(jobID)
	if state != types.StateActive {
		t.Errorf("expected active after claim, got %s", state)
	}
}

func TestClaimOrdersByAge(t *testing.T) {
	store := newTestStore(t)

	first, _ := store.Submit(types.Payload{Transcript: "first"})
	time.Sleep(5 * time.Millisecond)
	store.Submit(types.Payload{Transcript: "second"})

	claimedID, _, ok, err := store.Claim()
	if err != nil || !ok {
		t.Fatalf("claim failed: ok=%v err=%v", ok, err)
	}
	if claimedID != first {
		t.Errorf("expected oldest job first, got %s", claimedID)
	}
}

func TestCompleteAttachesResult(t *testing.T) {
	store := newTestStore(t)

	jobID, _ := store.Submit(types.Payload{Transcript: "text"})
	store.Claim()

	result := types.Result{Transcript: "text", Insights: types.DefaultInsights()}
	if err := store.Complete(jobID, result); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	view, err := store.Get(jobID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if view.State != types.StateCompleted {
		t.Errorf("expected completed, got %s", view.State)
	}
	if view.Result == nil || view.Result.Transcript != "text" {
		t.Errorf("result not round-tripped: %+v", view.Result)
	}
	if view.Result.Insights.Sentiment.Label != "neutral" {
		t.Errorf("insights not round-tripped: %+v", view.Result.Insights)
	}
}

func TestFailRecordsErrorWithoutResult(t *testing.T) {
	store := newTestStore(t)

	jobID, _ := store.Submit(types.Payload{AudioURL: "http://example.com/x.mp3"})
	store.Claim()

	if err := store.Fail(jobID, "download status 404"); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	view, err := store.Get(jobID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if view.State != types.StateFailed {
		t.Errorf("expected failed, got %s", view.State)
	}
	if view.Result != nil {
		t.Errorf("failed job must have no result, got %+v", view.Result)
	}
}

func TestTerminalStateIsSingleShot(t *testing.T) {
	store := newTestStore(t)

	jobID, _ := store.Submit(types.Payload{Transcript: "x"})
	store.Claim()

	if err := store.Complete(jobID, types.Result{Transcript: "x"}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	// A late Fail must not displace the completed state.
	if err := store.Fail(jobID, "too late"); err != nil {
		t.Fatalf("Fail errored: %v", err)
	}

	state, _ := store.State(jobID)
	if state != types.StateCompleted {
		t.Errorf("terminal state displaced: %s", state)
	}
}

func TestUnknownJobNotFound(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.State("no-such-job"); !errors.Is(err, types.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound from State, got %v", err)
	}
	if _, err := store.Get("no-such-job"); !errors.Is(err, types.ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound from Get, got %v", err)
	}
}

func TestRetentionPurgesTerminalJobs(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "queue.db"), RetentionPolicy{
		CompletedMaxAge: time.Nanosecond,
		FailedMaxAge:    time.Nanosecond,
	})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()

	done, _ := store.Submit(types.Payload{Transcript: "a"})
	store.Claim()
	store.Complete(done, types.Result{Transcript: "a"})

	failed, _ := store.Submit(types.Payload{Transcript: "b"})
	store.Claim()
	store.Fail(failed, "boom")

	waiting, _ := store.Submit(types.Payload{Transcript: "c"})

	time.Sleep(5 * time.Millisecond)
	store.sweep()

	for _, id := range []string{done, failed} {
		if _, err := store.Get(id); !errors.Is(err, types.ErrJobNotFound) {
			t.Errorf("expected job %s purged, got %v", id, err)
		}
	}
	// Non-terminal jobs are never purged by retention.
	if state, err := store.State(waiting); err != nil || state != types.StateWaiting {
		t.Errorf("waiting job must survive the sweep: %s %v", state, err)
	}
}

func TestRetentionKeepsNewestCompleted(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "queue.db"), RetentionPolicy{
		CompletedMaxCount: 2,
	})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()

	var ids []string
	for i := 0; i < 4; i++ {
		id, _ := store.Submit(types.Payload{Transcript: "x"})
		store.Claim()
		store.Complete(id, types.Result{Transcript: "x"})
		ids = append(ids, id)
		time.Sleep(5 * time.Millisecond)
	}

	store.sweep()

	var kept int
	for _, id := range ids {
		if _, err := store.Get(id); err == nil {
			kept++
		}
	}
	if kept != 2 {
		t.Errorf("expected 2 newest completed jobs kept, got %d", kept)
	}
}

func TestSubmitSignalsWake(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Submit(types.Payload{Transcript: "x"}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	select {
	case <-store.Wake():
	case <-time.After(time.Second):
		t.Error("expected a wake signal after submit")
	}
}
