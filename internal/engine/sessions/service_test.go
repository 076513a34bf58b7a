package sessions

import (
	"context"
	"errors"
	"strings"
	"testing"

	"wagate/internal/platform/models"
	"wagate/internal/platform/transport"
)

type memRepo struct {
	sessions map[string]*models.Session
}

func newMemRepo() *memRepo {
	return &memRepo{sessions: make(map[string]*models.Session)}
}

func (r *memRepo) Create(s *models.Session) error {
	r.sessions[s.ID] = s
	return nil
}

func (r *memRepo) GetByID(id string) (*models.Session, error) {
	return r.sessions[id], nil
}

func (r *memRepo) ListByOrg(orgID string) ([]*models.Session, error) {
	var out []*models.Session
	for _, s := range r.sessions {
		if s.OrganizationID == orgID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memRepo) CountByOrg(orgID string) (int, error) {
	n := 0
	for _, s := range r.sessions {
		if s.OrganizationID == orgID {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) UpdateStatus(id, status string, ts int64) error {
	if s, ok := r.sessions[id]; ok {
		s.Status = status
		s.UpdatedAt = ts
	}
	return nil
}

func (r *memRepo) Delete(id string) error {
	delete(r.sessions, id)
	return nil
}

func testOrg(quota int) *models.Organization {
	return &models.Organization{ID: "org-1", Slug: "acme", Name: "Acme", SessionQuota: quota}
}

func TestCreate_StartsPairing(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, transport.NewMemory(), nil)

	sess, err := svc.Create(context.Background(), testOrg(3), "support line")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if !strings.HasPrefix(sess.ID, "sess_") {
		t.Fatalf("unexpected session id: %s", sess.ID)
	}
	if sess.Status != models.SessionPairing {
		t.Fatalf("expected pairing status, got %s", sess.Status)
	}
	if repo.sessions[sess.ID] == nil {
		t.Fatal("session not persisted")
	}
}

func TestCreate_EnforcesQuota(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, transport.NewMemory(), nil)
	org := testOrg(2)

	for i := 0; i < 2; i++ {
		if _, err := svc.Create(context.Background(), org, "line"); err != nil {
			t.Fatalf("Create %d returned error: %v", i, err)
		}
	}

	_, err := svc.Create(context.Background(), org, "one too many")
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
}

func TestGet_ScopedToOrganization(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, transport.NewMemory(), nil)

	sess, err := svc.Create(context.Background(), testOrg(3), "support line")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if _, err := svc.Get("org-1", sess.ID); err != nil {
		t.Fatalf("owner lookup failed: %v", err)
	}
	if _, err := svc.Get("org-2", sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign org, got %v", err)
	}
	if _, err := svc.Get("org-1", "sess_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing id, got %v", err)
	}
}

func TestPairingQR(t *testing.T) {
	repo := newMemRepo()
	tp := transport.NewMemory()
	svc := NewService(repo, tp, nil)

	sess, err := svc.Create(context.Background(), testOrg(3), "support line")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	png, err := svc.PairingQR("org-1", sess.ID, 256)
	if err != nil {
		t.Fatalf("PairingQR returned error: %v", err)
	}
	if len(png) == 0 {
		t.Fatal("empty PNG")
	}

	// Once connected there is nothing left to pair.
	repo.sessions[sess.ID].Status = models.SessionConnected
	if _, err := svc.PairingQR("org-1", sess.ID, 256); !errors.Is(err, ErrNotPairing) {
		t.Fatalf("expected ErrNotPairing, got %v", err)
	}
}

func TestDelete_DisconnectsAndRemoves(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, transport.NewMemory(), nil)

	sess, err := svc.Create(context.Background(), testOrg(3), "support line")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := svc.Delete("org-1", sess.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if repo.sessions[sess.ID] != nil {
		t.Fatal("session still present after delete")
	}
	if err := svc.Delete("org-1", sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}
