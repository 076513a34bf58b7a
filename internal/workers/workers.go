package workers

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"wagate/internal/engine/analytics"
	"wagate/internal/platform/config"
	"wagate/internal/platform/database"
	"wagate/internal/platform/models"
	"wagate/internal/platform/repositories"
)

// StalePairingAge is how long a session may sit in initializing or
// pairing before the sweeper expires it. Pairing codes rotate faster
// than this, so anything older is abandoned.
const StalePairingAge = 30 * time.Minute

// Runner owns the periodic maintenance jobs. Each job iterates the live
// organizations and opens their tenant database through the shared pool.
type Runner struct {
	orgs     *repositories.OrganizationRepository
	sessions *repositories.SessionRepository
	pool     *database.TenantDBPool
	cfg      config.WebhooksConfig
	clock    clockwork.Clock
	logger   zerolog.Logger
}

func NewRunner(orgs *repositories.OrganizationRepository, sessions *repositories.SessionRepository, pool *database.TenantDBPool, cfg config.WebhooksConfig, clock clockwork.Clock) *Runner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 10
	}
	if cfg.FailureWindow <= 0 {
		cfg.FailureWindow = 24 * time.Hour
	}
	return &Runner{
		orgs:     orgs,
		sessions: sessions,
		pool:     pool,
		cfg:      cfg,
		clock:    clock,
		logger:   log.With().Str("component", "workers").Logger(),
	}
}

func (r *Runner) forEachTenant(job string, fn func(org *models.Organization) error) {
	orgs, err := r.orgs.List()
	if err != nil {
		r.logger.Error().Err(err).Str("job", job).Msg("failed to list organizations")
		return
	}
	for _, org := range orgs {
		if err := fn(org); err != nil {
			r.logger.Error().Err(err).Str("job", job).Str("org_id", org.ID).Msg("tenant job failed")
		}
	}
}

// SweepFailingSubscriptions disables subscriptions whose terminal
// failure count inside the window exceeded the configured threshold.
// They stay in the table so operators can inspect and re-enable them.
func (r *Runner) SweepFailingSubscriptions() {
	since := r.clock.Now().Add(-r.cfg.FailureWindow).Unix()

	r.forEachTenant("sweep_failing_subscriptions", func(org *models.Organization) error {
		db, err := r.pool.Get(org.ID, org.DBFilePath)
		if err != nil {
			return err
		}

		failures, err := repositories.NewDeliveryLogRepository(db).CountFailuresSince(since)
		if err != nil {
			return err
		}

		subs := repositories.NewSubscriptionRepository(db)
		for subID, count := range failures {
			if count <= r.cfg.FailureThreshold {
				continue
			}
			if err := subs.UpdateStatus(subID, models.SubscriptionDisabled); err != nil {
				return err
			}
			r.logger.Warn().
				Str("org_id", org.ID).
				Str("subscription_id", subID).
				Int("failures", count).
				Msg("subscription disabled after repeated delivery failures")
		}
		return nil
	})
}

// AggregateDailyStats recomputes the daily_stats rows for the given day
// across all tenants. Safe to re-run; the upsert overwrites.
func (r *Runner) AggregateDailyStats(date string) {
	r.forEachTenant("aggregate_daily_stats", func(org *models.Organization) error {
		db, err := r.pool.Get(org.ID, org.DBFilePath)
		if err != nil {
			return err
		}

		repo := analytics.NewRepository(db)
		sessionIDs, err := repo.DistinctSessions(date)
		if err != nil {
			return err
		}

		for _, sessionID := range sessionIDs {
			stat, err := repo.ComputeDailyStats(sessionID, date)
			if err != nil {
				return err
			}
			if err := repo.UpsertDailyStats(stat); err != nil {
				return err
			}
		}
		return nil
	})
}

// ExpireStaleSessions flips sessions stuck in initializing or pairing
// to expired once their pairing window has lapsed.
func (r *Runner) ExpireStaleSessions() {
	now := r.clock.Now()
	cutoff := now.Add(-StalePairingAge).Unix()

	stale, err := r.sessions.ListStalePairing(cutoff)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to list stale sessions")
		return
	}

	for _, sess := range stale {
		if err := r.sessions.UpdateStatus(sess.ID, models.SessionExpired, now.Unix()); err != nil {
			r.logger.Error().Err(err).Str("session_id", sess.ID).Msg("failed to expire session")
			continue
		}
		r.logger.Info().Str("session_id", sess.ID).Str("org_id", sess.OrganizationID).Msg("expired stale pairing session")
	}
}
