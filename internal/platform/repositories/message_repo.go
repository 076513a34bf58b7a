package repositories

import (
	"database/sql"

	"wagate/internal/platform/models"
)

type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(m *models.Message) error {
	_, err := r.db.Exec(`
		INSERT INTO messages (id, session_id, direction, recipient, sender, body, status, provider_id, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.SessionID, m.Direction, m.Recipient, m.Sender, m.Body, m.Status, m.ProviderID, m.ErrorMessage, m.CreatedAt, m.UpdatedAt)
	return err
}

func (r *MessageRepository) GetByID(id string) (*models.Message, error) {
	m := &models.Message{}
	err := r.db.QueryRow(`
		SELECT id, session_id, direction, recipient, sender, body, status, provider_id, error_message, created_at, updated_at
		FROM messages WHERE id = ?
	`, id).Scan(&m.ID, &m.SessionID, &m.Direction, &m.Recipient, &m.Sender, &m.Body, &m.Status, &m.ProviderID, &m.ErrorMessage, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

func (r *MessageRepository) MarkSent(id, providerID string, ts int64) error {
	_, err := r.db.Exec(`
		UPDATE messages SET status = ?, provider_id = ?, updated_at = ? WHERE id = ?
	`, models.MessageSent, providerID, ts, id)
	return err
}

func (r *MessageRepository) MarkFailed(id, errMsg string, ts int64) error {
	_, err := r.db.Exec(`
		UPDATE messages SET status = ?, error_message = ?, updated_at = ? WHERE id = ?
	`, models.MessageFailed, errMsg, ts, id)
	return err
}

// MarkAckByProvider upgrades the message matching the provider receipt.
// Acks only ever move a message forward (sent -> delivered -> read), so a
// late delivered ack must not downgrade an already read message.
func (r *MessageRepository) MarkAckByProvider(providerID, status string, ts int64) error {
	if status == models.MessageDelivered {
		_, err := r.db.Exec(`
			UPDATE messages SET status = ?, updated_at = ? WHERE provider_id = ? AND status = ?
		`, models.MessageDelivered, ts, providerID, models.MessageSent)
		return err
	}
	_, err := r.db.Exec(`
		UPDATE messages SET status = ?, updated_at = ? WHERE provider_id = ? AND status IN (?, ?)
	`, status, ts, providerID, models.MessageSent, models.MessageDelivered)
	return err
}

func (r *MessageRepository) ListBySession(sessionID string, limit, offset int) ([]*models.Message, error) {
	rows, err := r.db.Query(`
		SELECT id, session_id, direction, recipient, sender, body, status, provider_id, error_message, created_at, updated_at
		FROM messages WHERE session_id = ?
		ORDER BY created_at DESC LIMIT ? OFFSET ?
	`, sessionID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (r *MessageRepository) List(limit, offset int) ([]*models.Message, error) {
	rows, err := r.db.Query(`
		SELECT id, session_id, direction, recipient, sender, body, status, provider_id, error_message, created_at, updated_at
		FROM messages
		ORDER BY created_at DESC LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]*models.Message, error) {
	var messages []*models.Message
	for rows.Next() {
		m := &models.Message{}
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Direction, &m.Recipient, &m.Sender, &m.Body, &m.Status, &m.ProviderID, &m.ErrorMessage, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, nil
}
