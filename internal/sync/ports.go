package sync

import (
	"context"

	"runtrack/internal/models"
)

// LocalStore is the durable store the repository treats as the source of
// truth. *store.Store satisfies it.
type LocalStore interface {
	Runs(ctx context.Context) ([]models.Run, error)
	Watch(ctx context.Context) <-chan []models.Run
	UpsertRun(ctx context.Context, run models.Run) (string, error)
	UpsertRuns(ctx context.Context, runs []models.Run) ([]string, error)
	DeleteRun(ctx context.Context, id string) error
	DeleteAllRuns(ctx context.Context) error

	GetPendingRun(ctx context.Context, runID string) (*models.PendingRun, error)
	ListPendingRuns(ctx context.Context, userID string) ([]models.PendingRun, error)
	DeletePendingRun(ctx context.Context, runID string) error
	ListDeletedRuns(ctx context.Context, userID string) ([]models.DeletedRun, error)
	DeleteDeletedRun(ctx context.Context, runID string) error

	Session(ctx context.Context) (*models.Session, error)
}

// RemoteService is the backend run API. *remote.Client satisfies it.
type RemoteService interface {
	ListRuns(ctx context.Context) ([]models.Run, error)
	CreateRun(ctx context.Context, run models.Run, mapPicture []byte) (models.Run, error)
	DeleteRun(ctx context.Context, id string) error
	Logout(ctx context.Context) error
}

// Scheduler enqueues retrying background jobs for writes the backend
// rejected. Implementations persist the matching pending entry before
// enqueueing so the intent survives a process death.
type Scheduler interface {
	ScheduleCreate(ctx context.Context, run models.Run, mapPicture []byte) error
	ScheduleDelete(ctx context.Context, runID string) error
}
