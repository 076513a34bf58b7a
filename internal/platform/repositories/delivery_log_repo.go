package repositories

import (
	"database/sql"

	"wagate/internal/platform/models"
)

type DeliveryLogRepository struct {
	db *sql.DB
}

func NewDeliveryLogRepository(db *sql.DB) *DeliveryLogRepository {
	return &DeliveryLogRepository{db: db}
}

func (r *DeliveryLogRepository) Insert(entry *models.DeliveryLog) error {
	_, err := r.db.Exec(`
		INSERT INTO webhook_deliveries (id, subscription_id, event, payload, status, http_status, attempt_count, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.SubscriptionID, entry.Event, entry.Payload, entry.Status, entry.HTTPStatus, entry.AttemptCount, entry.ErrorMessage, entry.CreatedAt)
	return err
}

func (r *DeliveryLogRepository) ListBySubscription(subscriptionID string, limit, offset int) ([]*models.DeliveryLog, error) {
	rows, err := r.db.Query(`
		SELECT id, subscription_id, event, payload, status, http_status, attempt_count, error_message, created_at
		FROM webhook_deliveries WHERE subscription_id = ?
		ORDER BY created_at DESC LIMIT ? OFFSET ?
	`, subscriptionID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDeliveries(rows)
}

func (r *DeliveryLogRepository) ListRecent(limit, offset int) ([]*models.DeliveryLog, error) {
	rows, err := r.db.Query(`
		SELECT id, subscription_id, event, payload, status, http_status, attempt_count, error_message, created_at
		FROM webhook_deliveries
		ORDER BY created_at DESC LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDeliveries(rows)
}

// CountFailuresSince reports terminal failures per subscription since the
// given unix timestamp; the sweep worker disables chronic offenders.
func (r *DeliveryLogRepository) CountFailuresSince(since int64) (map[string]int, error) {
	rows, err := r.db.Query(`
		SELECT subscription_id, COUNT(*)
		FROM webhook_deliveries
		WHERE status = ? AND created_at >= ?
		GROUP BY subscription_id
	`, models.DeliveryFailed, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var subID string
		var n int
		if err := rows.Scan(&subID, &n); err != nil {
			return nil, err
		}
		counts[subID] = n
	}
	return counts, nil
}

func scanDeliveries(rows *sql.Rows) ([]*models.DeliveryLog, error) {
	var entries []*models.DeliveryLog
	for rows.Next() {
		entry := &models.DeliveryLog{}
		var errMsg sql.NullString
		if err := rows.Scan(&entry.ID, &entry.SubscriptionID, &entry.Event, &entry.Payload, &entry.Status, &entry.HTTPStatus, &entry.AttemptCount, &errMsg, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.ErrorMessage = errMsg.String
		entries = append(entries, entry)
	}
	return entries, nil
}
