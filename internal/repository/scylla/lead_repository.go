package scylla

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"botops-console/internal/models"
	"botops-console/internal/util"
)

// ScyllaLeadRepository persists leads with the contact email already
// envelope-encrypted by the service layer. Plaintext contact data never
// reaches this package.
type ScyllaLeadRepository struct {
	client *ScyllaClient
}

func NewScyllaLeadRepository(client *ScyllaClient) *ScyllaLeadRepository {
	return &ScyllaLeadRepository{client: client}
}

func (r *ScyllaLeadRepository) Create(ctx context.Context, lead *models.Lead) error {
	query := r.client.Prepared.CreateLead.Bind(
		lead.LeadID, lead.BotID, lead.Name, lead.Company, lead.ContactEncrypted,
		lead.ContactKeyID, lead.SourceURL, lead.Score, lead.Status, lead.CapturedAt).
		WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to create lead",
			zap.String("lead_id", lead.LeadID),
			zap.Error(err))
		return fmt.Errorf("failed to create lead: %w", err)
	}

	return nil
}

func (r *ScyllaLeadRepository) GetByID(ctx context.Context, leadID string) (*models.Lead, error) {
	lead := &models.Lead{}

	query := r.client.Prepared.GetLead.Bind(leadID).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&lead.LeadID, &lead.BotID, &lead.Name, &lead.Company, &lead.ContactEncrypted,
		&lead.ContactKeyID, &lead.SourceURL, &lead.Score, &lead.Status, &lead.CapturedAt)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}

	return lead, nil
}

func (r *ScyllaLeadRepository) List(ctx context.Context, limit int) ([]*models.Lead, error) {
	iter := r.client.Prepared.ListLeads.Bind().WithContext(ctx).PageSize(limit).Iter()

	var leads []*models.Lead
	lead := &models.Lead{}
	for iter.Scan(&lead.LeadID, &lead.BotID, &lead.Name, &lead.Company, &lead.ContactEncrypted,
		&lead.ContactKeyID, &lead.SourceURL, &lead.Score, &lead.Status, &lead.CapturedAt) {
		leads = append(leads, lead)
		lead = &models.Lead{}
		if limit > 0 && len(leads) >= limit {
			break
		}
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}

	return leads, nil
}

func (r *ScyllaLeadRepository) Update(ctx context.Context, lead *models.Lead) error {
	query := r.client.Prepared.UpdateLead.Bind(
		lead.Name, lead.Company, lead.ContactEncrypted, lead.ContactKeyID,
		lead.SourceURL, lead.Score, lead.Status, lead.LeadID).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		return fmt.Errorf("failed to update lead: %w", err)
	}
	return nil
}

func (r *ScyllaLeadRepository) Delete(ctx context.Context, leadID string) error {
	query := r.client.Prepared.DeleteLead.Bind(leadID).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		return fmt.Errorf("failed to delete lead: %w", err)
	}

	util.Info("Lead deleted", zap.String("lead_id", leadID))
	return nil
}
