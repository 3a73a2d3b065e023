package reaper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/Malick44/ZemwifiApp-sub001/internal/cashin"
)

// Reaper periodically expires cash-in requests that sat in a non-terminal
// status longer than the configured window. It runs outside the engine's
// synchronous call surface; expiry lands as a regular CAS so it races
// in-flight confirms and completes safely.
type Reaper struct {
	engine          *cashin.Engine
	window          time.Duration
	includeAccepted bool
	cron            *cron.Cron
	log             zerolog.Logger
}

func New(engine *cashin.Engine, window time.Duration, includeAccepted bool, log zerolog.Logger) *Reaper {
	return &Reaper{
		engine:          engine,
		window:          window,
		includeAccepted: includeAccepted,
		cron:            cron.New(),
		log:             log,
	}
}

// Start schedules the sweep and returns immediately.
func (r *Reaper) Start(schedule string) error {
	_, err := r.cron.AddFunc(schedule, r.sweep)
	if err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop waits for a running sweep to finish.
func (r *Reaper) Stop() {
	<-r.cron.Stop().Done()
}

// Sweep runs one pass immediately. Exposed for tests and manual runs.
func (r *Reaper) Sweep(ctx context.Context) (int64, error) {
	return r.engine.ExpireStale(ctx, time.Now().UTC().Add(-r.window), r.includeAccepted)
}

func (r *Reaper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := r.Sweep(ctx); err != nil {
		r.log.Error().Err(err).Msg("reaper sweep failed")
	}
}
