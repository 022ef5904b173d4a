package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"runtrack/internal/models"
	"runtrack/internal/remote"
	"runtrack/internal/store"
)

// Job tags. The fetch tag is also the dedup key for the recurring job.
const (
	tagFetch  = "fetch_runs"
	tagCreate = "create_run"
	tagDelete = "delete_run"
)

const (
	maxAttempts      = 5
	connectivityPoll = 3 * time.Second
)

// Syncer is the part of the sync repository the background jobs drive.
type Syncer interface {
	Fetch(ctx context.Context) error
	AttemptPendingRun(ctx context.Context, runID string) error
	AttemptDeletedRun(ctx context.Context, runID string) error
}

// PendingStore persists job intent before anything is enqueued, so a killed
// process picks the work back up from the pending queues instead of from
// in-memory state. *store.Store satisfies it.
type PendingStore interface {
	UpsertPendingRun(ctx context.Context, pending models.PendingRun) error
	UpsertDeletedRun(ctx context.Context, deleted models.DeletedRun) error
	Session(ctx context.Context) (*models.Session, error)
}

// Scheduler runs the background sync jobs: a recurring fetch plus one-shot
// create/delete retries with connectivity gating and exponential backoff.
type Scheduler struct {
	syncer Syncer
	store  PendingStore
	conn   Connectivity
	log    *logrus.Entry

	// initialBackoff is the first retry delay; tests shrink it.
	initialBackoff time.Duration

	mu   sync.Mutex
	jobs map[*job]struct{}
	wg   sync.WaitGroup
}

type job struct {
	tag    string
	cancel context.CancelFunc
}

// New creates a scheduler. Nothing runs until a job is scheduled, and the
// syncer must be wired with SetSyncer before that.
func New(pendingStore PendingStore, conn Connectivity) *Scheduler {
	return &Scheduler{
		store:          pendingStore,
		conn:           conn,
		log:            logrus.WithField("component", "scheduler"),
		initialBackoff: 2 * time.Second,
		jobs:           make(map[*job]struct{}),
	}
}

// SetSyncer wires the sync driver in after construction; the repository and
// the scheduler reference each other, so one of the two links has to land
// late.
func (s *Scheduler) SetSyncer(syncer Syncer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncer = syncer
}

// ScheduleFetch starts the recurring run fetch unless one is already
// scheduled under the same tag. The first fetch runs one interval after
// scheduling, because callers fetch once themselves on startup.
func (s *Scheduler) ScheduleFetch(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for j := range s.jobs {
		if j.tag == tagFetch {
			return
		}
	}

	s.spawnLocked(tagFetch, func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			s.runWithRetry(ctx, tagFetch, s.syncer.Fetch)
		}
	})
}

// ScheduleCreate persists the pending-create entry synchronously, then
// enqueues the one-shot upload retry. The entry is written first so the
// upload survives even if the process dies before the job runs.
func (s *Scheduler) ScheduleCreate(ctx context.Context, run models.Run, mapPicture []byte) error {
	sess, err := s.store.Session(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}

	pending := models.PendingRun{
		RunID:      run.ID,
		Run:        run,
		MapPicture: mapPicture,
		UserID:     sess.UserID,
	}
	if err := s.store.UpsertPendingRun(ctx, pending); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.spawnLocked(tagCreate, func(ctx context.Context) {
		s.runWithRetry(ctx, tagCreate, func(ctx context.Context) error {
			return s.syncer.AttemptPendingRun(ctx, run.ID)
		})
	})
	return nil
}

// ScheduleDelete persists the pending-delete entry synchronously, then
// enqueues the one-shot delete retry.
func (s *Scheduler) ScheduleDelete(ctx context.Context, runID string) error {
	sess, err := s.store.Session(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}

	deleted := models.DeletedRun{RunID: runID, UserID: sess.UserID}
	if err := s.store.UpsertDeletedRun(ctx, deleted); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.spawnLocked(tagDelete, func(ctx context.Context) {
		s.runWithRetry(ctx, tagDelete, func(ctx context.Context) error {
			return s.syncer.AttemptDeletedRun(ctx, runID)
		})
	})
	return nil
}

// CancelAll cancels every scheduled job unconditionally, e.g. on logout.
// Pending-queue entries are NOT cleared; that is a separate local-data
// concern.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	for j := range s.jobs {
		j.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) spawnLocked(tag string, fn func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())
	j := &job{tag: tag, cancel: cancel}
	s.jobs[j] = struct{}{}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.jobs, j)
			s.mu.Unlock()
			cancel()
		}()
		fn(ctx)
	}()
}

// runWithRetry executes one unit of sync work with the job retry policy:
// wait for connectivity, attempt, back off exponentially from the initial
// delay on retryable failures, and give up permanently after maxAttempts —
// the pending entry stays in the store for the periodic sweep to pick up.
func (s *Scheduler) runWithRetry(ctx context.Context, tag string, fn func(ctx context.Context) error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.initialBackoff
	bo.MaxElapsedTime = 0 // attempts are capped, not wall time

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if !s.waitOnline(ctx) {
			return
		}

		err := fn(ctx)
		if err == nil {
			return
		}
		if !retryable(err) {
			s.log.WithError(err).WithField("job", tag).
				Warn("permanent failure, leaving entry for the periodic sweep")
			return
		}
		if attempt == maxAttempts {
			s.log.WithError(err).WithField("job", tag).
				Warnf("giving up after %d attempts", maxAttempts)
			return
		}

		s.log.WithError(err).WithField("job", tag).
			Debugf("attempt %d failed, backing off", attempt)
		select {
		case <-ctx.Done():
			return
		case <-time.After(bo.NextBackOff()):
		}
	}
}

// waitOnline blocks until the backend looks reachable or the job is
// cancelled.
func (s *Scheduler) waitOnline(ctx context.Context) bool {
	for {
		if s.conn.Online(ctx) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(connectivityPoll):
		}
	}
}

// retryable classifies a job failure. Disk-full and client-side payload
// problems will not fix themselves by retrying; transient network and server
// conditions will.
func retryable(err error) bool {
	if errors.Is(err, store.ErrDiskFull) {
		return false
	}
	var re *remote.Error
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return false
}
