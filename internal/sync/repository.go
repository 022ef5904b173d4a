package sync

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"runtrack/internal/models"
)

// Repository implements the offline-first contract: the local store is the
// source of truth for reads, every write lands locally first, and failed
// remote writes are deferred into the durable pending queues instead of being
// surfaced as errors.
type Repository struct {
	local     LocalStore
	remote    RemoteService
	scheduler Scheduler
	scope     *Scope
	ids       *keyedMutex
	log       *logrus.Entry
}

// NewRepository wires the repository. Critical writes run on the given scope
// so caller cancellation cannot abort them.
func NewRepository(local LocalStore, remote RemoteService, scheduler Scheduler, scope *Scope) *Repository {
	return &Repository{
		local:     local,
		remote:    remote,
		scheduler: scheduler,
		scope:     scope,
		ids:       newKeyedMutex(),
		log:       logrus.WithField("component", "sync"),
	}
}

// Runs streams the local run list: one snapshot immediately, another after
// every local mutation. It never touches the network.
func (r *Repository) Runs(ctx context.Context) <-chan []models.Run {
	return r.local.Watch(ctx)
}

// Fetch pulls the full run list from the backend and upserts it locally. The
// local write runs on the process scope so a cancelled caller cannot lose it.
// Remote errors are returned untouched and leave the local store unmodified.
func (r *Repository) Fetch(ctx context.Context) error {
	runs, err := r.remote.ListRuns(ctx)
	if err != nil {
		return err
	}
	return r.scope.Do(func(ctx context.Context) error {
		_, err := r.local.UpsertRuns(ctx, runs)
		return err
	})
}

// UpsertRun commits a finished run locally, then pushes it to the backend.
// A local failure aborts the whole operation. A remote failure is absorbed:
// the run is queued for a deferred upload and the call still succeeds —
// locally committed, remotely deferred.
func (r *Repository) UpsertRun(ctx context.Context, run models.Run, mapPicture []byte) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	unlock := r.ids.Lock(run.ID)
	defer unlock()

	id, err := r.local.UpsertRun(ctx, run)
	if err != nil {
		return err
	}
	run.ID = id

	created, err := r.remote.CreateRun(ctx, run, mapPicture)
	if err != nil {
		r.log.WithError(err).WithField("run_id", run.ID).
			Warn("remote create failed, deferring upload")
		return r.scheduler.ScheduleCreate(ctx, run, mapPicture)
	}

	// Store the canonical run the server returned; it may now carry a map
	// picture URL.
	return r.scope.Do(func(ctx context.Context) error {
		_, err := r.local.UpsertRun(ctx, created)
		return err
	})
}

// DeleteRun removes a run locally right away, then settles the remote side.
// A run that never reached the server only needs its queued upload dropped;
// otherwise the remote delete is attempted on the process scope and deferred
// on failure.
func (r *Repository) DeleteRun(ctx context.Context, id string) error {
	unlock := r.ids.Lock(id)
	defer unlock()

	if err := r.local.DeleteRun(ctx, id); err != nil {
		return err
	}

	pending, err := r.local.GetPendingRun(ctx, id)
	if err != nil {
		return err
	}
	if pending != nil {
		// The server never saw this run; dropping the queued upload is the
		// whole delete.
		return r.local.DeletePendingRun(ctx, id)
	}

	err = r.scope.Do(func(ctx context.Context) error {
		return r.remote.DeleteRun(ctx, id)
	})
	if err != nil {
		r.log.WithError(err).WithField("run_id", id).
			Warn("remote delete failed, deferring")
		return r.scheduler.ScheduleDelete(ctx, id)
	}
	return nil
}

// SyncPendingRuns drains both pending queues for the current user. Every
// entry is attempted concurrently; failures are silent and leave the entry
// for the next sweep. The call returns once every attempt has resolved.
func (r *Repository) SyncPendingRuns(ctx context.Context) error {
	sess, err := r.local.Session(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}

	var pendingRuns []models.PendingRun
	var deletedRuns []models.DeletedRun

	fetch, fetchCtx := errgroup.WithContext(ctx)
	fetch.Go(func() error {
		var err error
		pendingRuns, err = r.local.ListPendingRuns(fetchCtx, sess.UserID)
		return err
	})
	fetch.Go(func() error {
		var err error
		deletedRuns, err = r.local.ListDeletedRuns(fetchCtx, sess.UserID)
		return err
	})
	if err := fetch.Wait(); err != nil {
		return err
	}

	var attempts errgroup.Group
	for _, pending := range pendingRuns {
		pending := pending
		attempts.Go(func() error {
			if err := r.AttemptPendingRun(ctx, pending.RunID); err != nil {
				r.log.WithError(err).WithField("run_id", pending.RunID).
					Debug("pending create still failing, leaving for next sweep")
			}
			return nil
		})
	}
	for _, deleted := range deletedRuns {
		deleted := deleted
		attempts.Go(func() error {
			if err := r.AttemptDeletedRun(ctx, deleted.RunID); err != nil {
				r.log.WithError(err).WithField("run_id", deleted.RunID).
					Debug("pending delete still failing, leaving for next sweep")
			}
			return nil
		})
	}
	return attempts.Wait()
}

// AttemptPendingRun retries the deferred upload for one pending-create entry
// and removes the entry on success. A missing entry means the work already
// happened; that is not an error.
func (r *Repository) AttemptPendingRun(ctx context.Context, runID string) error {
	pending, err := r.local.GetPendingRun(ctx, runID)
	if err != nil {
		return err
	}
	if pending == nil {
		return nil
	}

	if _, err := r.remote.CreateRun(ctx, pending.Run, pending.MapPicture); err != nil {
		return err
	}
	return r.scope.Do(func(ctx context.Context) error {
		return r.local.DeletePendingRun(ctx, runID)
	})
}

// AttemptDeletedRun retries the deferred remote delete for one pending-delete
// entry and removes the entry on success.
func (r *Repository) AttemptDeletedRun(ctx context.Context, runID string) error {
	if err := r.remote.DeleteRun(ctx, runID); err != nil {
		return err
	}
	return r.scope.Do(func(ctx context.Context) error {
		return r.local.DeleteDeletedRun(ctx, runID)
	})
}

// DeleteAllRuns clears the local run table, e.g. as part of the logout
// sequence. Pending queues are left alone.
func (r *Repository) DeleteAllRuns(ctx context.Context) error {
	return r.local.DeleteAllRuns(ctx)
}

// Logout invalidates the remote session. Local cleanup — cancelling syncs,
// clearing runs and the stored session — is composed by the caller, so a
// remote failure here never blocks it.
func (r *Repository) Logout(ctx context.Context) error {
	return r.remote.Logout(ctx)
}
