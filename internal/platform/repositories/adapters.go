package repositories

import (
	"database/sql"
	"fmt"

	"wagate/internal/engine/messages"
	"wagate/internal/platform/database"
	"wagate/internal/platform/models"
)

// TenantResolver maps an organization id to its tenant database. The
// webhook engine and the event pump are process singletons, so they
// resolve tenants here instead of carrying a request-scoped handle.
type TenantResolver struct {
	orgs *OrganizationRepository
	pool *database.TenantDBPool
}

func NewTenantResolver(orgs *OrganizationRepository, pool *database.TenantDBPool) *TenantResolver {
	return &TenantResolver{orgs: orgs, pool: pool}
}

func (t *TenantResolver) DB(orgID string) (*sql.DB, error) {
	org, err := t.orgs.GetByID(orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, fmt.Errorf("organization %s not found", orgID)
	}
	return t.pool.Get(org.ID, org.DBFilePath)
}

// WebhookSource adapts the tenant subscription tables to the engine's
// SubscriptionSource interface.
type WebhookSource struct {
	resolver *TenantResolver
}

func NewWebhookSource(resolver *TenantResolver) *WebhookSource {
	return &WebhookSource{resolver: resolver}
}

func (s *WebhookSource) ActiveForEvent(orgID, eventType string) ([]*models.Subscription, error) {
	db, err := s.resolver.DB(orgID)
	if err != nil {
		return nil, err
	}
	subs, err := NewSubscriptionRepository(db).ActiveForEvent(eventType)
	if err != nil {
		return nil, err
	}
	for _, sub := range subs {
		sub.OrganizationID = orgID
	}
	return subs, nil
}

// DeliverySink adapts the tenant delivery-log tables to the engine's
// DeliveryRecorder interface.
type DeliverySink struct {
	resolver *TenantResolver
}

func NewDeliverySink(resolver *TenantResolver) *DeliverySink {
	return &DeliverySink{resolver: resolver}
}

func (s *DeliverySink) Record(orgID string, entry *models.DeliveryLog) error {
	db, err := s.resolver.DB(orgID)
	if err != nil {
		return err
	}
	return NewDeliveryLogRepository(db).Insert(entry)
}

// MessageStores hands the event pump a tenant-scoped message store.
type MessageStores struct {
	resolver *TenantResolver
}

func NewMessageStores(resolver *TenantResolver) *MessageStores {
	return &MessageStores{resolver: resolver}
}

func (s *MessageStores) ForOrg(orgID string) (messages.Store, error) {
	db, err := s.resolver.DB(orgID)
	if err != nil {
		return nil, err
	}
	return NewMessageRepository(db), nil
}
