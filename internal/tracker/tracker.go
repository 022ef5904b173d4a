package tracker

import (
	"context"
	"math"
	"sync"
	"time"

	"runtrack/internal/geo"
)

const (
	// defaultLocationInterval is how often the sampler is asked for a fix.
	defaultLocationInterval = time.Second
	// defaultTickInterval is the nominal elapsed-time tick. The tracker
	// accumulates the measured wall-clock delta between ticks, not the
	// nominal constant, so scheduler jitter does not skew elapsed time.
	defaultTickInterval = 200 * time.Millisecond
)

// Metrics is the continuously updated aggregate of the current session.
type Metrics struct {
	DistanceMeters int
	// Pace is the average seconds-per-km over the whole session, zero while
	// no distance has been covered.
	Pace  time.Duration
	Route geo.Route
}

// Tracker aggregates a live fix stream into run metrics.
//
// Tracking is effective only while both the user requested it and location
// permission is granted. Every active-to-inactive transition closes the
// current route segment, so paused stretches never contribute distance.
//
// All state mutations are serialized under one mutex: the background loop,
// the flag setters and Finish never interleave mid-update.
type Tracker struct {
	sampler          Sampler
	locationInterval time.Duration
	tickInterval     time.Duration

	mu                sync.Mutex
	trackingRequested bool
	permissionGranted bool
	hasEverStarted    bool
	elapsed           time.Duration
	metrics           Metrics
	updates           chan Metrics
	cancel            context.CancelFunc
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLocationInterval overrides the sampler interval.
func WithLocationInterval(interval time.Duration) Option {
	return func(t *Tracker) { t.locationInterval = interval }
}

// WithTickInterval overrides the elapsed-time tick interval.
func WithTickInterval(interval time.Duration) Option {
	return func(t *Tracker) { t.tickInterval = interval }
}

// New creates a tracker consuming fixes from the given sampler.
func New(sampler Sampler, opts ...Option) *Tracker {
	t := &Tracker{
		sampler:          sampler,
		locationInterval: defaultLocationInterval,
		tickInterval:     defaultTickInterval,
		updates:          make(chan Metrics, 1),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins observing the fix stream and the elapsed-time ticks. It must
// be called once per session, before tracking is requested.
func (t *Tracker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	fixes := t.sampler.Observe(ctx, t.locationInterval)
	go t.loop(ctx, fixes)
}

// Stop cancels the observation loop. The session state stays readable.
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// loop is the single writer for elapsed time and metrics. Both inputs are
// handled here so a fix is always processed to completion before the next
// one, and never concurrently with a tick.
func (t *Tracker) loop(ctx context.Context, fixes <-chan geo.LocationWithAltitude) {
	ticker := time.NewTicker(t.tickInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			delta := now.Sub(last)
			last = now
			t.tick(delta)
		case loc, ok := <-fixes:
			if !ok {
				// Sampler closed; keep ticking so elapsed time stays live.
				fixes = nil
				continue
			}
			t.processFix(loc)
		}
	}
}

// tick accumulates elapsed wall-clock time while tracking is active.
func (t *Tracker) tick(delta time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.activeLocked() {
		t.elapsed += delta
	}
}

// processFix appends a fix to the current segment and recomputes the metrics.
// Fixes arriving while tracking is inactive are dropped.
func (t *Tracker) processFix(loc geo.LocationWithAltitude) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.activeLocked() {
		return
	}

	fix := geo.Fix{LocationWithAltitude: loc, Elapsed: t.elapsed}

	// Copy-on-write so published snapshots are never mutated after the fact.
	route := append(geo.Route{}, t.metrics.Route...)
	if len(route) == 0 {
		route = append(route, []geo.Fix{fix})
	} else {
		lastSegment := route[len(route)-1]
		segment := make([]geo.Fix, 0, len(lastSegment)+1)
		segment = append(segment, lastSegment...)
		route[len(route)-1] = append(segment, fix)
	}

	distance := geo.TotalDistanceMeters(route)
	t.metrics = Metrics{
		DistanceMeters: distance,
		Pace:           pace(t.elapsed, distance),
		Route:          route,
	}
	t.publishLocked()
}

// pace is the average seconds-per-km, exactly zero when no distance has been
// covered so the caller never sees an infinite or NaN pace.
func pace(elapsed time.Duration, distanceMeters int) time.Duration {
	if distanceMeters == 0 {
		return 0
	}
	distanceKm := float64(distanceMeters) / 1000
	secondsPerKm := math.Round(elapsed.Seconds() / distanceKm)
	return time.Duration(secondsPerKm) * time.Second
}

// SetTracking records the user's tracking intent.
func (t *Tracker) SetTracking(requested bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := t.activeLocked()
	t.trackingRequested = requested
	t.transitionLocked(wasActive)
}

// SetPermissionGranted records the external location-permission signal.
func (t *Tracker) SetPermissionGranted(granted bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := t.activeLocked()
	t.permissionGranted = granted
	t.transitionLocked(wasActive)
}

func (t *Tracker) transitionLocked(wasActive bool) {
	nowActive := t.activeLocked()
	switch {
	case !wasActive && nowActive:
		t.hasEverStarted = true
	case wasActive && !nowActive:
		// Close the current segment; the next fix starts a fresh one,
		// preserving the gap in the route and in the distance math.
		t.metrics.Route = append(append(geo.Route{}, t.metrics.Route...), nil)
		t.publishLocked()
	}
}

func (t *Tracker) activeLocked() bool {
	return t.trackingRequested && t.permissionGranted
}

// IsActive reports whether fixes are currently being recorded.
func (t *Tracker) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeLocked()
}

// HasEverStarted reports whether this session ever recorded actively.
func (t *Tracker) HasEverStarted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hasEverStarted
}

// Elapsed returns the accumulated active tracking time.
func (t *Tracker) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsed
}

// Metrics returns the latest aggregate snapshot.
func (t *Tracker) Metrics() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.metrics
}

// Updates delivers metric snapshots as they are recomputed. A slow consumer
// only ever misses intermediate snapshots, never the latest one.
func (t *Tracker) Updates() <-chan Metrics {
	return t.updates
}

// Finish ends the session: tracking stops, the final metrics and elapsed time
// are returned, and the tracker resets to a fresh idle state ready for a new
// session.
func (t *Tracker) Finish() (Metrics, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	final := t.metrics
	elapsed := t.elapsed

	t.trackingRequested = false
	t.hasEverStarted = false
	t.elapsed = 0
	t.metrics = Metrics{}

	return final, elapsed
}

func (t *Tracker) publishLocked() {
	select {
	case <-t.updates:
	default:
	}
	select {
	case t.updates <- t.metrics:
	default:
	}
}
