package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"runtrack/internal/auth"
	"runtrack/internal/config"
	"runtrack/internal/geo"
	"runtrack/internal/logging"
	"runtrack/internal/models"
	"runtrack/internal/remote"
	"runtrack/internal/scheduler"
	"runtrack/internal/store"
	runsync "runtrack/internal/sync"
	"runtrack/internal/tracker"
)

func main() {
	login := flag.Bool("login", false, "log in and store the session")
	logout := flag.Bool("logout", false, "log out and clear local data")
	syncOnce := flag.Bool("sync", false, "drain the pending queues and fetch runs once, then exit")
	replay := flag.String("replay", "", "replay a recorded route file as a tracked run")
	flag.Parse()

	if err := run(*login, *logout, *syncOnce, *replay); err != nil {
		log.Fatal(err)
	}
}

func run(login, logout, syncOnce bool, replayPath string) error {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if errors.Is(err, config.ErrNoConfig) {
		fmt.Println("No config file found. Creating example config...")
		if err := config.CreateExample(); err != nil {
			return fmt.Errorf("creating example config: %w", err)
		}
		configDir, _ := config.GetConfigDir()
		fmt.Printf("\nPlease edit the config file at:\n  %s/config.json\n\n", configDir)
		fmt.Println("You need to set api.base_url to your backend endpoint.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Validate config
	if err := cfg.Validate(); err != nil {
		configDir, _ := config.GetConfigDir()
		fmt.Printf("Config validation failed: %v\n\n", err)
		fmt.Printf("Please edit the config file at:\n  %s/config.json\n", configDir)
		return nil
	}

	logging.Setup(logging.SetupParams{
		LogFileName:   cfg.Log.File,
		LogToStdout:   cfg.Log.ToStdout,
		LogLevel:      cfg.Log.Level,
		LogFormatJSON: cfg.Log.JSON,
	})

	// Open database
	db, err := store.Open()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if login {
		return doLogin(ctx, db, cfg)
	}

	// Everything past this point needs a session.
	sess, err := db.Session(ctx)
	if err != nil {
		return fmt.Errorf("checking session: %w", err)
	}
	if sess == nil {
		fmt.Println("Not logged in. Run with -login first.")
		return nil
	}

	tokenSource := auth.NewTokenSource(cfg.API.BaseURL, *sess, func(accessToken, refreshToken string, expiresAt time.Time) error {
		return db.UpdateTokens(context.Background(), accessToken, refreshToken, expiresAt)
	})
	client := remote.NewClient(cfg.API.BaseURL, tokenSource)

	scope := runsync.NewScope()
	defer scope.Shutdown()

	conn := scheduler.NewDialChecker(cfg.API.BaseURL)
	jobs := scheduler.New(db, conn)
	repo := runsync.NewRepository(db, client, jobs, scope)
	jobs.SetSyncer(repo)

	switch {
	case logout:
		return doLogout(ctx, db, repo, jobs)
	case syncOnce:
		return doSyncOnce(ctx, repo)
	case replayPath != "":
		return doReplay(ctx, cfg, repo, replayPath)
	default:
		return daemon(ctx, cfg, repo, jobs)
	}
}

// doLogin prompts for credentials, exchanges them for a session and stores it.
func doLogin(ctx context.Context, db *store.Store, cfg *config.Config) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Email: ")
	email, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading email: %w", err)
	}
	fmt.Print("Password: ")
	password, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	client := remote.NewClient(cfg.API.BaseURL, nil)
	sess, err := client.Login(ctx, strings.TrimSpace(email), strings.TrimSpace(password))
	if err != nil {
		var re *remote.Error
		if errors.As(err, &re) && re.Kind == remote.Unauthorized {
			fmt.Println("Invalid email or password.")
			return nil
		}
		return fmt.Errorf("logging in: %w", err)
	}

	if err := db.SaveSession(ctx, sess); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	fmt.Println("Logged in.")
	return nil
}

// doLogout tears the session down in order: stop background jobs, clear local
// runs, invalidate the session remotely, then drop the stored session. A
// remote failure is reported but never blocks the local cleanup.
func doLogout(ctx context.Context, db *store.Store, repo *runsync.Repository, jobs *scheduler.Scheduler) error {
	jobs.CancelAll()

	if err := repo.DeleteAllRuns(ctx); err != nil {
		return fmt.Errorf("clearing local runs: %w", err)
	}
	if err := repo.Logout(ctx); err != nil {
		logrus.WithError(err).Warn("remote logout failed, clearing local session anyway")
	}
	if err := db.ClearSession(ctx); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}

	fmt.Println("Logged out.")
	return nil
}

// doSyncOnce drains the pending queues, then refreshes the local run list.
func doSyncOnce(ctx context.Context, repo *runsync.Repository) error {
	if err := repo.SyncPendingRuns(ctx); err != nil {
		return fmt.Errorf("syncing pending runs: %w", err)
	}
	if err := repo.Fetch(ctx); err != nil {
		return fmt.Errorf("fetching runs: %w", err)
	}
	fmt.Println("Sync complete.")
	return nil
}

// doReplay feeds a recorded route through the tracker and commits the
// resulting run, exercising the same aggregation and sync path a live run
// takes.
func doReplay(ctx context.Context, cfg *config.Config, repo *runsync.Repository, path string) error {
	locations, err := loadReplay(path)
	if err != nil {
		return err
	}
	if len(locations) == 0 {
		fmt.Println("Replay file contains no locations.")
		return nil
	}

	sampler := tracker.NewReplaySampler(locations)
	trk := tracker.New(sampler,
		tracker.WithLocationInterval(time.Duration(cfg.Tracking.LocationIntervalMillis)*time.Millisecond),
		tracker.WithTickInterval(time.Duration(cfg.Tracking.TickIntervalMillis)*time.Millisecond),
	)

	start := time.Now().UTC()
	trk.Start(ctx)
	trk.SetPermissionGranted(true)
	trk.SetTracking(true)

	select {
	case <-ctx.Done():
		trk.Stop()
		return ctx.Err()
	case <-sampler.Done():
	}

	metrics, elapsed := trk.Finish()
	trk.Stop()

	run := models.Run{
		Duration:             elapsed,
		StartTimeUTC:         start,
		DistanceMeters:       metrics.DistanceMeters,
		MaxSpeedKmh:          geo.MaxSpeedKmh(metrics.Route),
		TotalElevationMeters: geo.TotalElevationMeters(metrics.Route),
	}
	if len(metrics.Route) > 0 && len(metrics.Route[0]) > 0 {
		run.StartLocation = metrics.Route[0][0].Location
	}

	if err := repo.UpsertRun(ctx, run, nil); err != nil {
		return fmt.Errorf("saving replayed run: %w", err)
	}

	fmt.Printf("Replayed %s: %.2f km in %s\n",
		filepath.Base(path), float64(run.DistanceMeters)/1000, elapsed.Round(time.Second))
	return nil
}

// daemon keeps the local store in sync with the backend until interrupted:
// one immediate fetch and pending-queue drain, then a periodic fetch.
func daemon(ctx context.Context, cfg *config.Config, repo *runsync.Repository, jobs *scheduler.Scheduler) error {
	if err := repo.SyncPendingRuns(ctx); err != nil {
		logrus.WithError(err).Warn("initial pending sync failed")
	}
	if err := repo.Fetch(ctx); err != nil {
		logrus.WithError(err).Warn("initial fetch failed")
	}

	jobs.ScheduleFetch(time.Duration(cfg.API.FetchIntervalMinutes) * time.Minute)
	logrus.WithField("interval_minutes", cfg.API.FetchIntervalMinutes).Info("sync daemon running")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logrus.Info("shutting down")
	jobs.CancelAll()
	return nil
}

// loadReplay reads a JSON array of recorded locations.
func loadReplay(path string) ([]geo.LocationWithAltitude, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading replay file: %w", err)
	}

	var points []struct {
		Lat      float64 `json:"lat"`
		Long     float64 `json:"long"`
		Altitude float64 `json:"altitude"`
	}
	if err := json.Unmarshal(data, &points); err != nil {
		return nil, fmt.Errorf("parsing replay file: %w", err)
	}

	locations := make([]geo.LocationWithAltitude, 0, len(points))
	for _, p := range points {
		locations = append(locations, geo.LocationWithAltitude{
			Location: geo.Location{Lat: p.Lat, Long: p.Long},
			Altitude: p.Altitude,
		})
	}
	return locations, nil
}
