package sessions

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"wagate/internal/platform/models"
	"wagate/internal/platform/transport"
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrQuotaExceeded = errors.New("session quota exceeded")
	ErrNotPairing    = errors.New("session is not waiting to be paired")
)

type Repository interface {
	Create(s *models.Session) error
	GetByID(id string) (*models.Session, error)
	ListByOrg(orgID string) ([]*models.Session, error)
	CountByOrg(orgID string) (int, error)
	UpdateStatus(id, status string, ts int64) error
	Delete(id string) error
}

type Service struct {
	repo      Repository
	transport transport.Transport
	clock     clockwork.Clock
}

func NewService(repo Repository, tp transport.Transport, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{repo: repo, transport: tp, clock: clock}
}

// Create registers a new session for the organization, bounded by its
// plan quota, and starts pairing on the transport.
func (s *Service) Create(ctx context.Context, org *models.Organization, name string) (*models.Session, error) {
	count, err := s.repo.CountByOrg(org.ID)
	if err != nil {
		return nil, err
	}
	if count >= org.SessionQuota {
		return nil, ErrQuotaExceeded
	}

	now := s.clock.Now().Unix()
	sess := &models.Session{
		ID:             "sess_" + uuid.NewString(),
		OrganizationID: org.ID,
		Name:           name,
		Status:         models.SessionInitializing,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(sess); err != nil {
		return nil, err
	}

	if err := s.transport.Connect(ctx, sess.ID); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(sess.ID, models.SessionPairing, s.clock.Now().Unix()); err != nil {
		return nil, err
	}
	sess.Status = models.SessionPairing

	return sess, nil
}

// Get returns the session only when it belongs to the organization.
func (s *Service) Get(orgID, id string) (*models.Session, error) {
	sess, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.OrganizationID != orgID {
		return nil, ErrNotFound
	}
	return sess, nil
}

func (s *Service) List(orgID string) ([]*models.Session, error) {
	return s.repo.ListByOrg(orgID)
}

// PairingQR returns the pairing payload rendered as a PNG. Only a
// session still waiting to pair has a code to show.
func (s *Service) PairingQR(orgID, id string, size int) ([]byte, error) {
	sess, err := s.Get(orgID, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != models.SessionInitializing && sess.Status != models.SessionPairing {
		return nil, ErrNotPairing
	}

	payload, err := s.transport.PairingCode(sess.ID)
	if err != nil {
		return nil, err
	}
	return GenerateQRCode(payload, size)
}

// Delete disconnects the transport session and removes the record.
func (s *Service) Delete(orgID, id string) error {
	sess, err := s.Get(orgID, id)
	if err != nil {
		return err
	}
	if err := s.transport.Disconnect(sess.ID); err != nil && !errors.Is(err, transport.ErrSessionUnknown) {
		return err
	}
	return s.repo.Delete(sess.ID)
}
