package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"botops-console/internal/models"
	"botops-console/internal/util"
)

type ScyllaBotRepository struct {
	client *ScyllaClient
}

func NewScyllaBotRepository(client *ScyllaClient) *ScyllaBotRepository {
	return &ScyllaBotRepository{client: client}
}

func (r *ScyllaBotRepository) Create(ctx context.Context, bot *models.Bot) error {
	query := r.client.Prepared.CreateBot.Bind(
		bot.BotID, bot.Name, bot.JobName, bot.TargetSite, bot.Schedule,
		bot.PromptID, bot.Status, bot.CreatedAt, bot.UpdatedAt).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		util.Error("Failed to create bot",
			zap.String("bot_id", bot.BotID),
			zap.Error(err))
		return fmt.Errorf("failed to create bot: %w", err)
	}

	util.Info("Bot registered",
		zap.String("bot_id", bot.BotID),
		zap.String("job_name", bot.JobName))
	return nil
}

func (r *ScyllaBotRepository) GetByID(ctx context.Context, botID string) (*models.Bot, error) {
	bot := &models.Bot{}

	query := r.client.Prepared.GetBot.Bind(botID).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&bot.BotID, &bot.Name, &bot.JobName, &bot.TargetSite, &bot.Schedule,
		&bot.PromptID, &bot.Status, &bot.CreatedAt, &bot.UpdatedAt)

	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrBotNotFound
		}
		return nil, fmt.Errorf("failed to get bot: %w", err)
	}

	return bot, nil
}

func (r *ScyllaBotRepository) List(ctx context.Context) ([]*models.Bot, error) {
	iter := r.client.Prepared.ListBots.Bind().WithContext(ctx).Iter()

	var bots []*models.Bot
	bot := &models.Bot{}
	for iter.Scan(&bot.BotID, &bot.Name, &bot.JobName, &bot.TargetSite, &bot.Schedule,
		&bot.PromptID, &bot.Status, &bot.CreatedAt, &bot.UpdatedAt) {
		bots = append(bots, bot)
		bot = &models.Bot{}
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to list bots: %w", err)
	}

	return bots, nil
}

func (r *ScyllaBotRepository) Update(ctx context.Context, bot *models.Bot) error {
	now := time.Now().UTC()
	bot.UpdatedAt = &now

	query := r.client.Prepared.UpdateBot.Bind(
		bot.Name, bot.JobName, bot.TargetSite, bot.Schedule,
		bot.PromptID, bot.Status, bot.UpdatedAt, bot.BotID).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		return fmt.Errorf("failed to update bot: %w", err)
	}
	return nil
}

func (r *ScyllaBotRepository) Delete(ctx context.Context, botID string) error {
	query := r.client.Prepared.DeleteBot.Bind(botID).WithContext(ctx)

	if err := r.client.ExecuteWithRetry(query, 2); err != nil {
		return fmt.Errorf("failed to delete bot: %w", err)
	}

	util.Info("Bot deleted", zap.String("bot_id", botID))
	return nil
}
