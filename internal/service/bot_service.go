package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"botops-console/internal/models"
	"botops-console/internal/remote"
	"botops-console/internal/repository/scylla"
	"botops-console/internal/util"
)

var ErrBotNotFound = errors.New("bot not found")

// ProcessManager is the remote control surface for bot jobs.
type ProcessManager interface {
	StartJob(ctx context.Context, jobName string) error
	StopJob(ctx context.Context, jobName string) error
	GetJobStatus(ctx context.Context, jobName string) (*remote.JobStatus, error)
}

// BotService manages the bot registry and proxies start/stop/status
// commands to the process manager on the scraping host.
type BotService struct {
	bots    scylla.BotRepository
	manager ProcessManager
}

func NewBotService(bots scylla.BotRepository, manager ProcessManager) *BotService {
	return &BotService{
		bots:    bots,
		manager: manager,
	}
}

func (s *BotService) Create(ctx context.Context, bot *models.Bot) (*models.Bot, error) {
	if bot.Name == "" || bot.JobName == "" {
		return nil, fmt.Errorf("bot name and job name are required")
	}

	bot.BotID = uuid.New().String()
	bot.Status = models.BotStatusUnknown
	bot.CreatedAt = time.Now().UTC()
	bot.UpdatedAt = nil

	if err := s.bots.Create(ctx, bot); err != nil {
		return nil, err
	}
	return bot, nil
}

func (s *BotService) Get(ctx context.Context, botID string) (*models.Bot, error) {
	bot, err := s.bots.GetByID(ctx, botID)
	if err != nil {
		if errors.Is(err, scylla.ErrBotNotFound) {
			return nil, ErrBotNotFound
		}
		return nil, err
	}
	return bot, nil
}

func (s *BotService) List(ctx context.Context) ([]*models.Bot, error) {
	return s.bots.List(ctx)
}

func (s *BotService) Update(ctx context.Context, bot *models.Bot) error {
	existing, err := s.Get(ctx, bot.BotID)
	if err != nil {
		return err
	}

	// Status is owned by the process manager, not the caller
	bot.Status = existing.Status
	bot.CreatedAt = existing.CreatedAt

	return s.bots.Update(ctx, bot)
}

func (s *BotService) Delete(ctx context.Context, botID string) error {
	if _, err := s.Get(ctx, botID); err != nil {
		return err
	}
	return s.bots.Delete(ctx, botID)
}

// Start asks the process manager to start the bot's job.
func (s *BotService) Start(ctx context.Context, botID string) (*models.Bot, error) {
	bot, err := s.Get(ctx, botID)
	if err != nil {
		return nil, err
	}

	if err := s.manager.StartJob(ctx, bot.JobName); err != nil {
		return nil, fmt.Errorf("failed to start job %q: %w", bot.JobName, err)
	}

	bot.Status = models.BotStatusRunning
	if err := s.bots.Update(ctx, bot); err != nil {
		util.Warn("Failed to persist bot status", zap.String("bot_id", botID), zap.Error(err))
	}

	util.Info("Bot started", zap.String("bot_id", botID), zap.String("job_name", bot.JobName))
	return bot, nil
}

// Stop asks the process manager to stop the bot's job.
func (s *BotService) Stop(ctx context.Context, botID string) (*models.Bot, error) {
	bot, err := s.Get(ctx, botID)
	if err != nil {
		return nil, err
	}

	if err := s.manager.StopJob(ctx, bot.JobName); err != nil {
		return nil, fmt.Errorf("failed to stop job %q: %w", bot.JobName, err)
	}

	bot.Status = models.BotStatusStopped
	if err := s.bots.Update(ctx, bot); err != nil {
		util.Warn("Failed to persist bot status", zap.String("bot_id", botID), zap.Error(err))
	}

	util.Info("Bot stopped", zap.String("bot_id", botID), zap.String("job_name", bot.JobName))
	return bot, nil
}

// Status fetches the live process state and reconciles the stored status.
func (s *BotService) Status(ctx context.Context, botID string) (*remote.JobStatus, error) {
	bot, err := s.Get(ctx, botID)
	if err != nil {
		return nil, err
	}

	status, err := s.manager.GetJobStatus(ctx, bot.JobName)
	if err != nil {
		return nil, fmt.Errorf("failed to get status for job %q: %w", bot.JobName, err)
	}

	mapped := mapJobState(status.State)
	if mapped != bot.Status {
		bot.Status = mapped
		if err := s.bots.Update(ctx, bot); err != nil {
			util.Warn("Failed to reconcile bot status", zap.String("bot_id", botID), zap.Error(err))
		}
	}

	return status, nil
}

func mapJobState(state string) string {
	switch state {
	case "running", "online":
		return models.BotStatusRunning
	case "stopped", "exited":
		return models.BotStatusStopped
	case "errored", "fatal":
		return models.BotStatusErrored
	default:
		return models.BotStatusUnknown
	}
}
