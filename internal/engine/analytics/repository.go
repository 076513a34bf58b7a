package analytics

import (
	"database/sql"
	"fmt"
	"time"

	"wagate/internal/platform/models"
)

type DailyStat struct {
	Date      string `json:"date"`
	SessionID string `json:"session_id"`
	Sent      int    `json:"sent"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
	Received  int    `json:"received"`
}

// DeliverySummary aggregates webhook delivery outcomes over a period.
type DeliverySummary struct {
	Total       int     `json:"total"`
	Delivered   int     `json:"delivered"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) GetDailyStats(sessionID string, startDate, endDate string) ([]DailyStat, error) {
	query := `
		SELECT date, session_id, sent, delivered, failed, received
		FROM daily_stats
		WHERE session_id = ? AND date >= ? AND date <= ?
		ORDER BY date DESC
	`
	rows, err := r.db.Query(query, sessionID, startDate, endDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []DailyStat
	for rows.Next() {
		var s DailyStat
		if err := rows.Scan(&s.Date, &s.SessionID, &s.Sent, &s.Delivered, &s.Failed, &s.Received); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, nil
}

// DistinctSessions lists the sessions that exchanged messages on the
// given day, for the aggregation worker to iterate.
func (r *Repository) DistinctSessions(date string) ([]string, error) {
	startTs, endTs, err := dayBounds(date)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query("SELECT DISTINCT session_id FROM messages WHERE created_at >= ? AND created_at < ?", startTs, endTs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Aggregation queries used by the worker (or on-demand if needed)
func (r *Repository) ComputeDailyStats(sessionID, date string) (*DailyStat, error) {
	startTs, endTs, err := dayBounds(date)
	if err != nil {
		return nil, err
	}

	stat := &DailyStat{Date: date, SessionID: sessionID}

	// Outbound messages that left the gateway
	r.db.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE session_id = ? AND direction = ? AND status IN (?, ?, ?) AND created_at >= ? AND created_at < ?",
		sessionID, models.MessageOutbound, models.MessageSent, models.MessageDelivered, models.MessageRead, startTs, endTs,
	).Scan(&stat.Sent)

	// Confirmed by the recipient's client
	r.db.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE session_id = ? AND direction = ? AND status IN (?, ?) AND created_at >= ? AND created_at < ?",
		sessionID, models.MessageOutbound, models.MessageDelivered, models.MessageRead, startTs, endTs,
	).Scan(&stat.Delivered)

	r.db.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE session_id = ? AND direction = ? AND status = ? AND created_at >= ? AND created_at < ?",
		sessionID, models.MessageOutbound, models.MessageFailed, startTs, endTs,
	).Scan(&stat.Failed)

	r.db.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE session_id = ? AND direction = ? AND created_at >= ? AND created_at < ?",
		sessionID, models.MessageInbound, startTs, endTs,
	).Scan(&stat.Received)

	return stat, nil
}

func (r *Repository) UpsertDailyStats(stat *DailyStat) error {
	// SQLite upsert
	query := `
		INSERT INTO daily_stats (id, session_id, date, sent, delivered, failed, received, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, date) DO UPDATE SET
			sent=excluded.sent,
			delivered=excluded.delivered,
			failed=excluded.failed,
			received=excluded.received
	`
	id := fmt.Sprintf("%s_%s", stat.SessionID, stat.Date)

	_, err := r.db.Exec(query,
		id, stat.SessionID, stat.Date,
		stat.Sent, stat.Delivered, stat.Failed, stat.Received,
		time.Now().Unix(),
	)
	return err
}

// GetOrgDailyTotals rolls the per-session daily_stats rows up into one
// row per day across the whole tenant.
func (r *Repository) GetOrgDailyTotals(startDate, endDate string) ([]DailyStat, error) {
	query := `
		SELECT date, SUM(sent), SUM(delivered), SUM(failed), SUM(received)
		FROM daily_stats
		WHERE date >= ? AND date <= ?
		GROUP BY date
		ORDER BY date DESC
	`
	rows, err := r.db.Query(query, startDate, endDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []DailyStat
	for rows.Next() {
		var s DailyStat
		if err := rows.Scan(&s.Date, &s.Sent, &s.Delivered, &s.Failed, &s.Received); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, nil
}

// GetDeliverySummary reports webhook delivery outcomes since the given
// unix timestamp.
func (r *Repository) GetDeliverySummary(since int64) (*DeliverySummary, error) {
	summary := &DeliverySummary{}

	err := r.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM webhook_deliveries
		WHERE created_at >= ?
	`, models.DeliveryDelivered, models.DeliveryFailed, since).Scan(&summary.Total, &summary.Delivered, &summary.Failed)
	if err != nil {
		return nil, err
	}

	if summary.Total > 0 {
		summary.SuccessRate = float64(summary.Delivered) / float64(summary.Total)
	}
	return summary, nil
}

func dayBounds(date string) (int64, int64, error) {
	start, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0, 0, err
	}
	return start.Unix(), start.Add(24 * time.Hour).Unix(), nil
}
