package tracker

import (
	"context"
	"time"

	"runtrack/internal/geo"
)

// Sampler emits location fixes at roughly the requested interval. The stream
// is cold: sampling starts on Observe and stops when ctx is cancelled, at
// which point the channel is closed.
type Sampler interface {
	Observe(ctx context.Context, interval time.Duration) <-chan geo.LocationWithAltitude
}

// ReplaySampler replays a recorded list of locations, one per interval. Used
// for headless runs and tests; the Done channel closes once every location
// has been emitted.
type ReplaySampler struct {
	Locations []geo.LocationWithAltitude

	done chan struct{}
}

// NewReplaySampler creates a sampler that will emit the given locations.
func NewReplaySampler(locations []geo.LocationWithAltitude) *ReplaySampler {
	return &ReplaySampler{
		Locations: locations,
		done:      make(chan struct{}),
	}
}

// Observe implements Sampler.
func (r *ReplaySampler) Observe(ctx context.Context, interval time.Duration) <-chan geo.LocationWithAltitude {
	ch := make(chan geo.LocationWithAltitude)
	go func() {
		defer close(ch)
		defer close(r.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for _, loc := range r.Locations {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			select {
			case <-ctx.Done():
				return
			case ch <- loc:
			}
		}
	}()
	return ch
}

// Done closes once the replay has emitted its last location or was cancelled.
func (r *ReplaySampler) Done() <-chan struct{} {
	return r.done
}
