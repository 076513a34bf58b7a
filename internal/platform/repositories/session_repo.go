package repositories

import (
	"database/sql"

	"wagate/internal/platform/models"
)

// SessionRepository lives in the global database so the event pump can
// resolve a session to its organization without touching tenant pools.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(s *models.Session) error {
	_, err := r.db.Exec(`
		INSERT INTO wa_sessions (id, organization_id, name, phone, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.OrganizationID, s.Name, s.Phone, s.Status, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r *SessionRepository) GetByID(id string) (*models.Session, error) {
	s := &models.Session{}
	err := r.db.QueryRow(`
		SELECT id, organization_id, name, phone, status, last_connected_at, created_at, updated_at
		FROM wa_sessions WHERE id = ?
	`, id).Scan(&s.ID, &s.OrganizationID, &s.Name, &s.Phone, &s.Status, &s.LastConnectedAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func (r *SessionRepository) ListByOrg(orgID string) ([]*models.Session, error) {
	rows, err := r.db.Query(`
		SELECT id, organization_id, name, phone, status, last_connected_at, created_at, updated_at
		FROM wa_sessions WHERE organization_id = ? ORDER BY created_at ASC
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s := &models.Session{}
		if err := rows.Scan(&s.ID, &s.OrganizationID, &s.Name, &s.Phone, &s.Status, &s.LastConnectedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (r *SessionRepository) CountByOrg(orgID string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM wa_sessions WHERE organization_id = ?`, orgID).Scan(&count)
	return count, err
}

// UpdateStatus also stamps last_connected_at on transitions to connected.
func (r *SessionRepository) UpdateStatus(id, status string, ts int64) error {
	if status == models.SessionConnected {
		_, err := r.db.Exec(`UPDATE wa_sessions SET status = ?, last_connected_at = ?, updated_at = ? WHERE id = ?`, status, ts, ts, id)
		return err
	}
	_, err := r.db.Exec(`UPDATE wa_sessions SET status = ?, updated_at = ? WHERE id = ?`, status, ts, id)
	return err
}

func (r *SessionRepository) UpdatePhone(id, phone string, ts int64) error {
	_, err := r.db.Exec(`UPDATE wa_sessions SET phone = ?, updated_at = ? WHERE id = ?`, phone, ts, id)
	return err
}

func (r *SessionRepository) Delete(id string) error {
	_, err := r.db.Exec(`DELETE FROM wa_sessions WHERE id = ?`, id)
	return err
}

// ListStalePairing returns sessions that never finished pairing before
// the cutoff; the expiry worker flips them to expired.
func (r *SessionRepository) ListStalePairing(before int64) ([]*models.Session, error) {
	rows, err := r.db.Query(`
		SELECT id, organization_id, name, phone, status, last_connected_at, created_at, updated_at
		FROM wa_sessions
		WHERE status IN (?, ?) AND created_at < ?
	`, models.SessionInitializing, models.SessionPairing, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s := &models.Session{}
		if err := rows.Scan(&s.ID, &s.OrganizationID, &s.Name, &s.Phone, &s.Status, &s.LastConnectedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}
