package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"botops-console/internal/client"
	"botops-console/internal/encryption"
	"botops-console/internal/models"
	"botops-console/internal/repository/scylla"
	"botops-console/internal/util"
)

var (
	ErrLeadNotFound      = errors.New("lead not found")
	ErrSearchUnavailable = errors.New("lead search unavailable")
)

// LeadDocument is the shape indexed into Elasticsearch. Contact details
// stay out of the index; only Scylla holds them, encrypted.
type LeadDocument struct {
	LeadID     string    `json:"lead_id"`
	BotID      string    `json:"bot_id"`
	Name       string    `json:"name"`
	Company    string    `json:"company"`
	SourceURL  string    `json:"source_url"`
	Score      int       `json:"score"`
	Status     string    `json:"status"`
	CapturedAt time.Time `json:"captured_at"`
}

// LeadService manages captured leads: contact emails are envelope-encrypted
// before they reach Scylla, and a redacted copy of each lead is indexed for
// full-text search.
type LeadService struct {
	leads      scylla.LeadRepository
	encryption *encryption.EncryptionManager
	es         *client.ESClient
	index      string
}

func NewLeadService(leads scylla.LeadRepository, em *encryption.EncryptionManager, es *client.ESClient, index string) *LeadService {
	return &LeadService{
		leads:      leads,
		encryption: em,
		es:         es,
		index:      index,
	}
}

func (s *LeadService) Create(ctx context.Context, lead *models.Lead) (*models.Lead, error) {
	if lead.BotID == "" {
		return nil, fmt.Errorf("lead bot id is required")
	}

	lead.LeadID = uuid.New().String()
	if lead.CapturedAt.IsZero() {
		lead.CapturedAt = time.Now().UTC()
	}
	if lead.Status == "" {
		lead.Status = "new"
	}

	if err := s.sealContact(ctx, lead); err != nil {
		return nil, err
	}

	if err := s.leads.Create(ctx, lead); err != nil {
		return nil, err
	}

	s.indexLead(ctx, lead)
	return lead, nil
}

func (s *LeadService) Get(ctx context.Context, leadID string) (*models.Lead, error) {
	lead, err := s.leads.GetByID(ctx, leadID)
	if err != nil {
		if errors.Is(err, scylla.ErrLeadNotFound) {
			return nil, ErrLeadNotFound
		}
		return nil, err
	}

	s.openContact(ctx, lead)
	return lead, nil
}

func (s *LeadService) List(ctx context.Context, limit int) ([]*models.Lead, error) {
	leads, err := s.leads.List(ctx, limit)
	if err != nil {
		return nil, err
	}

	for _, lead := range leads {
		s.openContact(ctx, lead)
	}
	return leads, nil
}

func (s *LeadService) Update(ctx context.Context, lead *models.Lead) error {
	existing, err := s.leads.GetByID(ctx, lead.LeadID)
	if err != nil {
		if errors.Is(err, scylla.ErrLeadNotFound) {
			return ErrLeadNotFound
		}
		return err
	}

	if lead.ContactEmail != "" {
		if err := s.sealContact(ctx, lead); err != nil {
			return err
		}
	} else {
		lead.ContactEncrypted = existing.ContactEncrypted
		lead.ContactKeyID = existing.ContactKeyID
	}

	if err := s.leads.Update(ctx, lead); err != nil {
		return err
	}

	s.indexLead(ctx, lead)
	return nil
}

func (s *LeadService) Delete(ctx context.Context, leadID string) error {
	if _, err := s.leads.GetByID(ctx, leadID); err != nil {
		if errors.Is(err, scylla.ErrLeadNotFound) {
			return ErrLeadNotFound
		}
		return err
	}

	if err := s.leads.Delete(ctx, leadID); err != nil {
		return err
	}

	if s.es != nil {
		if _, err := s.es.DeleteDocument(ctx, s.index, leadID); err != nil {
			util.Warn("Failed to remove lead from search index",
				zap.String("lead_id", leadID), zap.Error(err))
		}
	}
	return nil
}

type leadSearchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source LeadDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search runs a full-text query against the lead index.
func (s *LeadService) Search(ctx context.Context, query string, limit int) ([]LeadDocument, int, error) {
	if s.es == nil {
		return nil, 0, ErrSearchUnavailable
	}
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	esQuery := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"name^2", "company", "source_url", "status"},
			},
		},
		"sort": []map[string]interface{}{
			{"_score": map[string]interface{}{"order": "desc"}},
		},
	}

	res, err := s.es.Search(ctx, s.index, esQuery)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrSearchUnavailable, err)
	}

	var parsed leadSearchResponse
	if err := s.es.ParseResponse(res, &parsed); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrSearchUnavailable, err)
	}

	docs := make([]LeadDocument, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		docs = append(docs, hit.Source)
	}
	return docs, parsed.Hits.Total.Value, nil
}

func (s *LeadService) sealContact(ctx context.Context, lead *models.Lead) error {
	if lead.ContactEmail == "" {
		return nil
	}

	blob, keyID, err := s.encryption.EncryptField(ctx, util.NormalizeEmail(lead.ContactEmail))
	if err != nil {
		return fmt.Errorf("failed to encrypt lead contact: %w", err)
	}
	lead.ContactEncrypted = blob
	lead.ContactKeyID = keyID
	return nil
}

func (s *LeadService) openContact(ctx context.Context, lead *models.Lead) {
	if len(lead.ContactEncrypted) == 0 {
		return
	}

	plaintext, err := s.encryption.DecryptField(ctx, lead.ContactEncrypted)
	if err != nil {
		// Leave the contact redacted rather than failing the read
		util.Warn("Failed to decrypt lead contact",
			zap.String("lead_id", lead.LeadID), zap.Error(err))
		return
	}
	lead.ContactEmail = plaintext
}

func (s *LeadService) indexLead(ctx context.Context, lead *models.Lead) {
	if s.es == nil {
		return
	}

	doc := LeadDocument{
		LeadID:     lead.LeadID,
		BotID:      lead.BotID,
		Name:       lead.Name,
		Company:    lead.Company,
		SourceURL:  lead.SourceURL,
		Score:      lead.Score,
		Status:     lead.Status,
		CapturedAt: lead.CapturedAt,
	}

	if _, err := s.es.IndexDocument(ctx, s.index, lead.LeadID, doc); err != nil {
		util.Warn("Failed to index lead",
			zap.String("lead_id", lead.LeadID), zap.Error(err))
	}
}
