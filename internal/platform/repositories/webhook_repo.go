package repositories

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"wagate/internal/platform/models"
)

// SubscriptionRepository manages webhook subscriptions inside a tenant
// database; the organization id on the model is filled in by the caller.
type SubscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) Create(sub *models.Subscription) error {
	sub.ID = "wh_" + uuid.New().String()
	sub.CreatedAt = time.Now().Unix()
	sub.UpdatedAt = time.Now().Unix()
	sub.Status = models.SubscriptionActive

	eventsJSON, err := json.Marshal(sub.Events)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO webhook_subscriptions (id, url, events, secret, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query, sub.ID, sub.URL, string(eventsJSON), sub.Secret, sub.Status, sub.CreatedAt, sub.UpdatedAt)
	return err
}

func (r *SubscriptionRepository) GetByID(id string) (*models.Subscription, error) {
	query := `SELECT id, url, events, secret, status, created_at, updated_at FROM webhook_subscriptions WHERE id = ?`
	row := r.db.QueryRow(query, id)

	var s models.Subscription
	var eventsStr string

	err := row.Scan(&s.ID, &s.URL, &eventsStr, &s.Secret, &s.Status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	json.Unmarshal([]byte(eventsStr), &s.Events)

	return &s, nil
}

func (r *SubscriptionRepository) List() ([]*models.Subscription, error) {
	query := `SELECT id, url, events, secret, status, created_at, updated_at FROM webhook_subscriptions ORDER BY created_at DESC`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		var s models.Subscription
		var eventsStr string

		if err := rows.Scan(&s.ID, &s.URL, &eventsStr, &s.Secret, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(eventsStr), &s.Events)
		subs = append(subs, &s)
	}
	return subs, nil
}

// Update touches url, events and status only; the signing secret is
// immutable after registration.
func (r *SubscriptionRepository) Update(sub *models.Subscription) error {
	eventsJSON, err := json.Marshal(sub.Events)
	if err != nil {
		return err
	}
	sub.UpdatedAt = time.Now().Unix()

	query := `
		UPDATE webhook_subscriptions
		SET url = ?, events = ?, status = ?, updated_at = ?
		WHERE id = ?
	`
	_, err = r.db.Exec(query, sub.URL, string(eventsJSON), sub.Status, sub.UpdatedAt, sub.ID)
	return err
}

func (r *SubscriptionRepository) Delete(id string) error {
	_, err := r.db.Exec(`DELETE FROM webhook_subscriptions WHERE id = ?`, id)
	return err
}

func (r *SubscriptionRepository) UpdateStatus(id, status string) error {
	_, err := r.db.Exec(`UPDATE webhook_subscriptions SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().Unix(), id)
	return err
}

func (r *SubscriptionRepository) ActiveForEvent(eventType string) ([]*models.Subscription, error) {
	// Events are stored as a JSON array; with few subscriptions per
	// tenant, fetching active rows and filtering in app is fine.
	query := `SELECT id, url, events, secret, status, created_at, updated_at FROM webhook_subscriptions WHERE status = 'active'`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matched []*models.Subscription
	for rows.Next() {
		var s models.Subscription
		var eventsStr string
		if err := rows.Scan(&s.ID, &s.URL, &eventsStr, &s.Secret, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
			continue
		}

		var events []string
		if err := json.Unmarshal([]byte(eventsStr), &events); err == nil {
			for _, e := range events {
				if e == eventType {
					s.Events = events
					matched = append(matched, &s)
					break
				}
			}
		}
	}
	return matched, nil
}
