package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const cleanupTimeout = 30 * time.Second

// PairingPurger drops pairing requests past their expiry.
type PairingPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// ContactPurger deletes contacts older than a retention window.
type ContactPurger interface {
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int64, error)
}

type CleanupJob struct {
	pairing   PairingPurger
	contacts  ContactPurger
	retention time.Duration
	interval  time.Duration
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewCleanupJob builds the periodic sweep. Contacts are only purged when
// retention is positive.
func NewCleanupJob(
	pairing PairingPurger,
	contacts ContactPurger,
	retention time.Duration,
	interval time.Duration,
) *CleanupJob {
	return &CleanupJob{
		pairing:   pairing,
		contacts:  contacts,
		retention: retention,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	j.wg.Add(1)
	go j.run()
	log.Info().
		Dur("interval", j.interval).
		Dur("contactRetention", j.retention).
		Msg("cleanup job started")
}

// Stop ends the loop and waits for an in-flight sweep to finish.
func (j *CleanupJob) Stop() {
	j.stopOnce.Do(func() {
		close(j.done)
		j.wg.Wait()
		log.Info().Msg("cleanup job stopped")
	})
}

func (j *CleanupJob) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	j.runCleanup(ctx, "pairing requests", j.pairing.PurgeExpired)
	if j.contacts != nil && j.retention > 0 {
		j.runCleanup(ctx, "contacts", func(ctx context.Context) (int64, error) {
			return j.contacts.PurgeOlderThan(ctx, j.retention)
		})
	}
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
