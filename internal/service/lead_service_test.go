package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botops-console/internal/config"
	"botops-console/internal/encryption"
	"botops-console/internal/models"
	"botops-console/internal/repository/scylla"
)

type memLeadStore struct {
	mu    sync.Mutex
	leads map[string]*models.Lead
}

func newMemLeadStore() *memLeadStore {
	return &memLeadStore{leads: make(map[string]*models.Lead)}
}

func (s *memLeadStore) Create(ctx context.Context, lead *models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *lead
	s.leads[lead.LeadID] = &copied
	return nil
}

func (s *memLeadStore) GetByID(ctx context.Context, leadID string) (*models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.leads[leadID]; ok {
		copied := *l
		// The plaintext contact never comes back from storage
		copied.ContactEmail = ""
		return &copied, nil
	}
	return nil, scylla.ErrLeadNotFound
}

func (s *memLeadStore) List(ctx context.Context, limit int) ([]*models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Lead, 0, len(s.leads))
	for _, l := range s.leads {
		if len(out) >= limit {
			break
		}
		copied := *l
		copied.ContactEmail = ""
		out = append(out, &copied)
	}
	return out, nil
}

func (s *memLeadStore) Update(ctx context.Context, lead *models.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *lead
	s.leads[lead.LeadID] = &copied
	return nil
}

func (s *memLeadStore) Delete(ctx context.Context, leadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.leads, leadID)
	return nil
}

func (s *memLeadStore) raw(leadID string) *models.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leads[leadID]
}

func newLeadFixture(t *testing.T) (*LeadService, *memLeadStore) {
	t.Helper()

	em := encryption.NewEncryptionManager(&config.Config{}, nil)
	store := newMemLeadStore()
	return NewLeadService(store, em, nil, "leads"), store
}

func TestLeadCreateEncryptsContact(t *testing.T) {
	svc, store := newLeadFixture(t)
	ctx := context.Background()

	lead, err := svc.Create(ctx, &models.Lead{
		BotID:        "bot-1",
		Name:         "Jane Prospect",
		Company:      "Acme",
		ContactEmail: "Jane@Acme.COM",
	})
	require.NoError(t, err)
	require.NotEmpty(t, lead.LeadID)
	assert.Equal(t, "new", lead.Status)
	assert.False(t, lead.CapturedAt.IsZero())

	stored := store.raw(lead.LeadID)
	require.NotNil(t, stored)
	assert.NotEmpty(t, stored.ContactEncrypted)
	assert.NotEmpty(t, stored.ContactKeyID)
	assert.NotContains(t, string(stored.ContactEncrypted), "jane@acme.com")
}

func TestLeadCreateRequiresBotID(t *testing.T) {
	svc, _ := newLeadFixture(t)

	_, err := svc.Create(context.Background(), &models.Lead{Name: "Jane"})
	assert.Error(t, err)
}

func TestLeadGetDecryptsContact(t *testing.T) {
	svc, _ := newLeadFixture(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, &models.Lead{
		BotID:        "bot-1",
		Name:         "Jane Prospect",
		ContactEmail: "Jane@Acme.COM",
	})
	require.NoError(t, err)

	fetched, err := svc.Get(ctx, created.LeadID)
	require.NoError(t, err)
	assert.Equal(t, "jane@acme.com", fetched.ContactEmail)
}

func TestLeadGetWithoutContact(t *testing.T) {
	svc, _ := newLeadFixture(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, &models.Lead{BotID: "bot-1", Name: "No Contact"})
	require.NoError(t, err)

	fetched, err := svc.Get(ctx, created.LeadID)
	require.NoError(t, err)
	assert.Empty(t, fetched.ContactEmail)
	assert.Empty(t, fetched.ContactEncrypted)
}

func TestLeadGetCorruptCiphertextRedacts(t *testing.T) {
	svc, store := newLeadFixture(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, &models.Lead{
		BotID:        "bot-1",
		Name:         "Jane Prospect",
		ContactEmail: "jane@acme.com",
	})
	require.NoError(t, err)

	store.raw(created.LeadID).ContactEncrypted = []byte("not an envelope")

	fetched, err := svc.Get(ctx, created.LeadID)
	require.NoError(t, err)
	assert.Empty(t, fetched.ContactEmail, "undecryptable contact stays redacted")
}

func TestLeadUpdateCarriesCiphertextWhenContactUnchanged(t *testing.T) {
	svc, store := newLeadFixture(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, &models.Lead{
		BotID:        "bot-1",
		Name:         "Jane Prospect",
		ContactEmail: "jane@acme.com",
	})
	require.NoError(t, err)
	originalBlob := store.raw(created.LeadID).ContactEncrypted

	require.NoError(t, svc.Update(ctx, &models.Lead{
		LeadID: created.LeadID,
		BotID:  "bot-1",
		Name:   "Jane P.",
		Status: "qualified",
	}))

	stored := store.raw(created.LeadID)
	assert.Equal(t, "Jane P.", stored.Name)
	assert.Equal(t, originalBlob, stored.ContactEncrypted)

	// Contact still decrypts after the update
	fetched, err := svc.Get(ctx, created.LeadID)
	require.NoError(t, err)
	assert.Equal(t, "jane@acme.com", fetched.ContactEmail)
}

func TestLeadUpdateReplacesContact(t *testing.T) {
	svc, store := newLeadFixture(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, &models.Lead{
		BotID:        "bot-1",
		Name:         "Jane Prospect",
		ContactEmail: "jane@acme.com",
	})
	require.NoError(t, err)
	originalBlob := store.raw(created.LeadID).ContactEncrypted

	require.NoError(t, svc.Update(ctx, &models.Lead{
		LeadID:       created.LeadID,
		BotID:        "bot-1",
		Name:         "Jane Prospect",
		ContactEmail: "jane.doe@acme.com",
	}))

	assert.NotEqual(t, originalBlob, store.raw(created.LeadID).ContactEncrypted)

	fetched, err := svc.Get(ctx, created.LeadID)
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@acme.com", fetched.ContactEmail)
}

func TestLeadDeleteNotFound(t *testing.T) {
	svc, _ := newLeadFixture(t)

	assert.ErrorIs(t, svc.Delete(context.Background(), "missing"), ErrLeadNotFound)
}

func TestLeadSearchWithoutIndex(t *testing.T) {
	svc, _ := newLeadFixture(t)

	_, _, err := svc.Search(context.Background(), "acme", 10)
	assert.ErrorIs(t, err, ErrSearchUnavailable)
}
