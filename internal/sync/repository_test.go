package sync

import (
	"context"
	"database/sql"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runtrack/internal/geo"
	"runtrack/internal/models"
	"runtrack/internal/remote"
	"runtrack/internal/store"
)

type fakeRemote struct {
	mu gosync.Mutex

	listRuns  []models.Run
	listErr   error
	createErr error
	deleteErr error

	created []string
	deleted []string
	logouts int
}

func (f *fakeRemote) ListRuns(ctx context.Context) ([]models.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listRuns, nil
}

func (f *fakeRemote) CreateRun(ctx context.Context, run models.Run, mapPicture []byte) (models.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return models.Run{}, f.createErr
	}
	f.created = append(f.created, run.ID)
	run.MapPictureURL = "https://cdn.example.com/maps/" + run.ID + ".jpg"
	return run, nil
}

func (f *fakeRemote) DeleteRun(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeRemote) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts++
	return nil
}

func (f *fakeRemote) createdRuns() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}

func (f *fakeRemote) deletedRuns() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

// fakeScheduler records deferrals and persists the pending entry the way the
// real scheduler does, so drain behavior can be tested against the store.
type fakeScheduler struct {
	store *store.Store

	mu      gosync.Mutex
	creates []string
	deletes []string
}

func (f *fakeScheduler) ScheduleCreate(ctx context.Context, run models.Run, mapPicture []byte) error {
	sess, err := f.store.Session(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}
	if err := f.store.UpsertPendingRun(ctx, models.PendingRun{
		RunID:      run.ID,
		Run:        run,
		MapPicture: mapPicture,
		UserID:     sess.UserID,
	}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, run.ID)
	return nil
}

func (f *fakeScheduler) ScheduleDelete(ctx context.Context, runID string) error {
	sess, err := f.store.Session(ctx)
	if err != nil {
		return err
	}
	if sess == nil {
		return nil
	}
	if err := f.store.UpsertDeletedRun(ctx, models.DeletedRun{RunID: runID, UserID: sess.UserID}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, runID)
	return nil
}

func newTestRepo(t *testing.T) (*Repository, *store.Store, *fakeRemote, *fakeScheduler) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	local, err := store.NewTestStore(db)
	require.NoError(t, err)

	require.NoError(t, local.SaveSession(context.Background(), models.Session{
		UserID:      "user-a",
		AccessToken: "access-1",
		ExpiresAt:   time.Now().Add(time.Hour),
	}))

	rem := &fakeRemote{}
	sched := &fakeScheduler{store: local}
	scope := NewScope()
	t.Cleanup(scope.Shutdown)

	return NewRepository(local, rem, sched, scope), local, rem, sched
}

func testRun(id string) models.Run {
	return models.Run{
		ID:             id,
		Duration:       30 * time.Minute,
		StartTimeUTC:   time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		StartLocation:  geo.Location{Lat: 52.52, Long: 13.405},
		DistanceMeters: 5000,
		MaxSpeedKmh:    14.2,
	}
}

func serverError() *remote.Error {
	return &remote.Error{Kind: remote.ServerError, Status: 500}
}

func TestUpsertRunSyncsRemote(t *testing.T) {
	repo, local, rem, sched := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertRun(ctx, testRun("run-1"), []byte{1, 2, 3}))

	runs, err := local.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	// The canonical server copy, with the rendered map URL, wins locally.
	assert.NotEmpty(t, runs[0].MapPictureURL)

	assert.Equal(t, []string{"run-1"}, rem.createdRuns())
	assert.Empty(t, sched.creates)

	pending, err := local.GetPendingRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestUpsertRunAssignsID(t *testing.T) {
	repo, local, _, _ := newTestRepo(t)
	ctx := context.Background()

	run := testRun("")
	require.NoError(t, repo.UpsertRun(ctx, run, nil))

	runs, err := local.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.NotEmpty(t, runs[0].ID)
}

func TestUpsertRunRemoteFailureDefers(t *testing.T) {
	repo, local, rem, sched := newTestRepo(t)
	ctx := context.Background()
	rem.createErr = serverError()

	picture := []byte{0xff, 0xd8}
	// A failed remote create is still a success for the caller: the run is
	// committed locally and the upload deferred.
	require.NoError(t, repo.UpsertRun(ctx, testRun("run-1"), picture))

	runs, err := local.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	assert.Equal(t, []string{"run-1"}, sched.creates)
	pending, err := local.GetPendingRun(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, "user-a", pending.UserID)
	assert.Equal(t, picture, pending.MapPicture)
}

type diskFullLocal struct {
	LocalStore
}

func (d diskFullLocal) UpsertRun(ctx context.Context, run models.Run) (string, error) {
	return "", store.ErrDiskFull
}

func TestUpsertRunLocalFailureAborts(t *testing.T) {
	_, local, rem, sched := newTestRepo(t)
	scope := NewScope()
	t.Cleanup(scope.Shutdown)
	repo := NewRepository(diskFullLocal{LocalStore: local}, rem, sched, scope)

	err := repo.UpsertRun(context.Background(), testRun("run-1"), nil)
	require.ErrorIs(t, err, store.ErrDiskFull)

	// The remote must never see a run the local store rejected.
	assert.Empty(t, rem.createdRuns())
	assert.Empty(t, sched.creates)
}

func TestDeleteRunSyncsRemote(t *testing.T) {
	repo, local, rem, sched := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertRun(ctx, testRun("run-1"), nil))
	require.NoError(t, repo.DeleteRun(ctx, "run-1"))

	runs, err := local.Runs(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.Equal(t, []string{"run-1"}, rem.deletedRuns())
	assert.Empty(t, sched.deletes)
}

func TestDeleteNeverSyncedRunSkipsRemote(t *testing.T) {
	repo, local, rem, sched := newTestRepo(t)
	ctx := context.Background()

	// The create never reached the server, leaving a pending entry behind.
	rem.createErr = serverError()
	require.NoError(t, repo.UpsertRun(ctx, testRun("run-1"), nil))
	rem.createErr = nil

	require.NoError(t, repo.DeleteRun(ctx, "run-1"))

	// Dropping the queued upload is the whole delete: no remote call, no
	// deferred delete.
	assert.Empty(t, rem.deletedRuns())
	assert.Empty(t, sched.deletes)

	pending, err := local.GetPendingRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Nil(t, pending)
	runs, err := local.Runs(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestDeleteRunRemoteFailureDefers(t *testing.T) {
	repo, local, rem, sched := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertRun(ctx, testRun("run-1"), nil))

	rem.deleteErr = serverError()
	require.NoError(t, repo.DeleteRun(ctx, "run-1"))

	assert.Equal(t, []string{"run-1"}, sched.deletes)
	deleted, err := local.ListDeletedRuns(ctx, "user-a")
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, "run-1", deleted[0].RunID)
}

func TestFetchStoresRemoteRuns(t *testing.T) {
	repo, local, rem, _ := newTestRepo(t)
	ctx := context.Background()

	rem.listRuns = []models.Run{testRun("run-1"), testRun("run-2")}
	require.NoError(t, repo.Fetch(ctx))

	runs, err := local.Runs(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestFetchRemoteFailureLeavesStoreAlone(t *testing.T) {
	repo, local, rem, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertRun(ctx, testRun("run-1"), nil))

	rem.listErr = serverError()
	err := repo.Fetch(ctx)

	var re *remote.Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, remote.ServerError, re.Kind)

	runs, err := local.Runs(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSyncPendingRunsDrainsBothQueues(t *testing.T) {
	repo, local, rem, _ := newTestRepo(t)
	ctx := context.Background()

	// One deferred upload and one deferred delete.
	rem.createErr = serverError()
	require.NoError(t, repo.UpsertRun(ctx, testRun("run-1"), nil))
	rem.createErr = nil

	require.NoError(t, local.UpsertDeletedRun(ctx, models.DeletedRun{RunID: "run-2", UserID: "user-a"}))

	require.NoError(t, repo.SyncPendingRuns(ctx))

	assert.Equal(t, []string{"run-1"}, rem.createdRuns())
	assert.Equal(t, []string{"run-2"}, rem.deletedRuns())

	pending, err := local.ListPendingRuns(ctx, "user-a")
	require.NoError(t, err)
	assert.Empty(t, pending)
	deleted, err := local.ListDeletedRuns(ctx, "user-a")
	require.NoError(t, err)
	assert.Empty(t, deleted)
}

func TestSyncPendingRunsKeepsFailingEntries(t *testing.T) {
	repo, local, rem, _ := newTestRepo(t)
	ctx := context.Background()

	rem.createErr = serverError()
	require.NoError(t, repo.UpsertRun(ctx, testRun("run-1"), nil))

	// Still failing: the sweep swallows the error and keeps the entry.
	require.NoError(t, repo.SyncPendingRuns(ctx))

	pending, err := local.ListPendingRuns(ctx, "user-a")
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	// Once the backend recovers, the next sweep drains it.
	rem.createErr = nil
	require.NoError(t, repo.SyncPendingRuns(ctx))

	pending, err = local.ListPendingRuns(ctx, "user-a")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSyncPendingRunsWithoutSession(t *testing.T) {
	repo, local, rem, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, local.ClearSession(ctx))
	require.NoError(t, repo.SyncPendingRuns(ctx))

	assert.Empty(t, rem.createdRuns())
	assert.Empty(t, rem.deletedRuns())
}

func TestAttemptPendingRunMissingEntry(t *testing.T) {
	repo, _, rem, _ := newTestRepo(t)

	// The entry was already drained elsewhere; nothing to do.
	require.NoError(t, repo.AttemptPendingRun(context.Background(), "run-1"))
	assert.Empty(t, rem.createdRuns())
}

func TestRunsStreamsLocalChanges(t *testing.T) {
	repo, _, _, _ := newTestRepo(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := repo.Runs(ctx)

	select {
	case runs := <-ch:
		assert.Empty(t, runs)
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	require.NoError(t, repo.UpsertRun(ctx, testRun("run-1"), nil))

	deadline := time.After(time.Second)
	for {
		select {
		case runs := <-ch:
			if len(runs) == 1 && runs[0].ID == "run-1" {
				return
			}
		case <-deadline:
			t.Fatal("no snapshot containing the new run")
		}
	}
}

func TestLogoutOnlyHitsRemote(t *testing.T) {
	repo, local, rem, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertRun(ctx, testRun("run-1"), nil))
	require.NoError(t, repo.Logout(ctx))

	assert.Equal(t, 1, rem.logouts)

	// Local cleanup is the caller's job, composed around this call.
	runs, err := local.Runs(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	sess, err := local.Session(ctx)
	require.NoError(t, err)
	assert.NotNil(t, sess)
}

func TestDeleteAllRunsClearsOnlyRuns(t *testing.T) {
	repo, local, rem, _ := newTestRepo(t)
	ctx := context.Background()

	rem.createErr = serverError()
	require.NoError(t, repo.UpsertRun(ctx, testRun("run-1"), nil))
	rem.createErr = nil
	require.NoError(t, repo.UpsertRun(ctx, testRun("run-2"), nil))

	require.NoError(t, repo.DeleteAllRuns(ctx))

	runs, err := local.Runs(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)

	// The pending queue survives; its entry still has to reach the server.
	pending, err := local.ListPendingRuns(ctx, "user-a")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}
