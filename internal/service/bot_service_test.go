package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botops-console/internal/models"
	"botops-console/internal/remote"
	"botops-console/internal/repository/scylla"
)

type memBotStore struct {
	mu   sync.Mutex
	bots map[string]*models.Bot
}

func newMemBotStore() *memBotStore {
	return &memBotStore{bots: make(map[string]*models.Bot)}
}

func (s *memBotStore) Create(ctx context.Context, bot *models.Bot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *bot
	s.bots[bot.BotID] = &copied
	return nil
}

func (s *memBotStore) GetByID(ctx context.Context, botID string) (*models.Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.bots[botID]; ok {
		copied := *b
		return &copied, nil
	}
	return nil, scylla.ErrBotNotFound
}

func (s *memBotStore) List(ctx context.Context) ([]*models.Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Bot, 0, len(s.bots))
	for _, b := range s.bots {
		copied := *b
		out = append(out, &copied)
	}
	return out, nil
}

func (s *memBotStore) Update(ctx context.Context, bot *models.Bot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *bot
	s.bots[bot.BotID] = &copied
	return nil
}

func (s *memBotStore) Delete(ctx context.Context, botID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bots, botID)
	return nil
}

type fakeProcessManager struct {
	mu        sync.Mutex
	started   []string
	stopped   []string
	statusOut *remote.JobStatus
	err       error
}

func (m *fakeProcessManager) StartJob(ctx context.Context, jobName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.started = append(m.started, jobName)
	return nil
}

func (m *fakeProcessManager) StopJob(ctx context.Context, jobName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.stopped = append(m.stopped, jobName)
	return nil
}

func (m *fakeProcessManager) GetJobStatus(ctx context.Context, jobName string) (*remote.JobStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.statusOut, nil
}

func newBotFixture(t *testing.T) (*BotService, *memBotStore, *fakeProcessManager) {
	t.Helper()
	store := newMemBotStore()
	manager := &fakeProcessManager{}
	return NewBotService(store, manager), store, manager
}

func TestBotCreateValidates(t *testing.T) {
	svc, _, _ := newBotFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, &models.Bot{Name: "scraper"})
	assert.Error(t, err)

	_, err = svc.Create(ctx, &models.Bot{JobName: "scraper-job"})
	assert.Error(t, err)

	bot, err := svc.Create(ctx, &models.Bot{Name: "scraper", JobName: "scraper-job"})
	require.NoError(t, err)
	assert.NotEmpty(t, bot.BotID)
	assert.Equal(t, models.BotStatusUnknown, bot.Status)
	assert.False(t, bot.CreatedAt.IsZero())
}

func TestBotGetNotFound(t *testing.T) {
	svc, _, _ := newBotFixture(t)

	_, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrBotNotFound)
}

func TestBotUpdatePreservesStatusAndCreatedAt(t *testing.T) {
	svc, store, manager := newBotFixture(t)
	ctx := context.Background()

	bot, err := svc.Create(ctx, &models.Bot{Name: "scraper", JobName: "scraper-job"})
	require.NoError(t, err)

	_, err = svc.Start(ctx, bot.BotID)
	require.NoError(t, err)
	require.Equal(t, []string{"scraper-job"}, manager.started)

	update := &models.Bot{
		BotID:      bot.BotID,
		Name:       "renamed",
		JobName:    "scraper-job",
		TargetSite: "example.com",
		Status:     models.BotStatusErrored, // caller-supplied status is ignored
	}
	require.NoError(t, svc.Update(ctx, update))

	stored, err := store.GetByID(ctx, bot.BotID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", stored.Name)
	assert.Equal(t, models.BotStatusRunning, stored.Status)
	assert.Equal(t, bot.CreatedAt, stored.CreatedAt)
}

func TestBotStartStop(t *testing.T) {
	svc, store, manager := newBotFixture(t)
	ctx := context.Background()

	bot, err := svc.Create(ctx, &models.Bot{Name: "scraper", JobName: "scraper-job"})
	require.NoError(t, err)

	started, err := svc.Start(ctx, bot.BotID)
	require.NoError(t, err)
	assert.Equal(t, models.BotStatusRunning, started.Status)

	stopped, err := svc.Stop(ctx, bot.BotID)
	require.NoError(t, err)
	assert.Equal(t, models.BotStatusStopped, stopped.Status)
	assert.Equal(t, []string{"scraper-job"}, manager.stopped)

	stored, err := store.GetByID(ctx, bot.BotID)
	require.NoError(t, err)
	assert.Equal(t, models.BotStatusStopped, stored.Status)
}

func TestBotStartRemoteFailure(t *testing.T) {
	svc, store, manager := newBotFixture(t)
	ctx := context.Background()

	bot, err := svc.Create(ctx, &models.Bot{Name: "scraper", JobName: "scraper-job"})
	require.NoError(t, err)

	manager.err = remote.ErrJobNotFound
	_, err = svc.Start(ctx, bot.BotID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, remote.ErrJobNotFound))

	// Stored status is untouched on failure
	stored, err := store.GetByID(ctx, bot.BotID)
	require.NoError(t, err)
	assert.Equal(t, models.BotStatusUnknown, stored.Status)
}

func TestBotStatusReconciles(t *testing.T) {
	svc, store, manager := newBotFixture(t)
	ctx := context.Background()

	bot, err := svc.Create(ctx, &models.Bot{Name: "scraper", JobName: "scraper-job"})
	require.NoError(t, err)

	manager.statusOut = &remote.JobStatus{JobName: "scraper-job", State: "online", PID: 4242}

	status, err := svc.Status(ctx, bot.BotID)
	require.NoError(t, err)
	assert.Equal(t, 4242, status.PID)

	stored, err := store.GetByID(ctx, bot.BotID)
	require.NoError(t, err)
	assert.Equal(t, models.BotStatusRunning, stored.Status)
}

func TestMapJobState(t *testing.T) {
	assert.Equal(t, models.BotStatusRunning, mapJobState("running"))
	assert.Equal(t, models.BotStatusRunning, mapJobState("online"))
	assert.Equal(t, models.BotStatusStopped, mapJobState("exited"))
	assert.Equal(t, models.BotStatusErrored, mapJobState("fatal"))
	assert.Equal(t, models.BotStatusUnknown, mapJobState("launching"))
}

func TestBotDelete(t *testing.T) {
	svc, _, _ := newBotFixture(t)
	ctx := context.Background()

	bot, err := svc.Create(ctx, &models.Bot{Name: "scraper", JobName: "scraper-job"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, bot.BotID))
	assert.ErrorIs(t, svc.Delete(ctx, bot.BotID), ErrBotNotFound)
}
