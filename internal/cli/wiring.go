package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"

	"quizrank-service/internal/app"
	"quizrank-service/internal/config"
	"quizrank-service/internal/domain"
	"quizrank-service/internal/infra/memory"
	"quizrank-service/internal/infra/postgres"
	"quizrank-service/internal/infra/rabbitmq"
	infraredis "quizrank-service/internal/infra/redis"
	"quizrank-service/internal/quiz"
	"quizrank-service/internal/ranking"
)

// directory is the student, class and unified score source shared by quizzes and rankings.
type directory interface {
	ranking.ScoreRepository
	SaveScore(ctx context.Context, s domain.UnifiedScore) error
	DeleteScore(ctx context.Context, studentID string) (bool, error)
}

// services is the wired object graph for one process.
type services struct {
	cfg    config.Config
	logger *slog.Logger

	banks     app.BankRepository
	quizzes   app.QuizStore
	attempts  app.AttemptStore
	directory directory
	rankings  ranking.RankingRepository
	agg       *ranking.Aggregator
	trigger   *ranking.Trigger
	hub       *app.RankingHub
	mode      quiz.Mode

	redis *redis.Client
	pool  *pgxpool.Pool

	closers []func()
}

// buildServices connects the configured backends. Empty URLs fall back to in-memory stores.
func buildServices(ctx context.Context, cfg config.Config, logger *slog.Logger) (*services, error) {
	s := &services{cfg: cfg, logger: logger, hub: app.NewRankingHub(), mode: quiz.ParseMode(cfg.Quiz.Mode)}

	if cfg.Redis.Addr != "" {
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s.closers = append(s.closers, func() { _ = s.redis.Close() })
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.Close()
			return nil, fmt.Errorf("%w: redis ping: %w", domain.ErrPersistence, err)
		}
	}

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("%w: postgres connect: %w", domain.ErrPersistence, err)
		}
		s.pool = pool
		s.closers = append(s.closers, pool.Close)
	}

	if err := s.wireBanks(ctx); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.wireStores(); err != nil {
		s.Close()
		return nil, err
	}

	settings := ranking.Settings{
		BatchSize:          cfg.Ranking.BatchSize,
		BatchPause:         config.TTLDuration(cfg.Ranking.BatchPause, ranking.DefaultSettings().BatchPause),
		MaxConflictRetries: cfg.Ranking.MaxConflictRetries,
		Concurrency:        cfg.Ranking.Concurrency,
	}
	s.agg = ranking.NewAggregator(s.directory, s.rankings, settings, logger)
	s.agg.SetPublisher(s.hub)
	s.trigger = ranking.NewTrigger(s.agg, s.directory, logger)
	return s, nil
}

func (s *services) wireBanks(ctx context.Context) error {
	files, err := memory.ReadBankFiles(s.cfg.Quiz.BankFiles...)
	if err != nil {
		return fmt.Errorf("read bank files: %w", err)
	}

	var loader memory.BankLoader = memory.NewStaticBankLoader(files...)
	if s.pool != nil {
		pg := postgres.NewBankLoader(s.pool)
		for _, bank := range files {
			if err := pg.SaveBank(ctx, bank); err != nil {
				return err
			}
		}
		loader = pg
	}
	s.logger.Info("question banks loaded", "files", len(files), "postgres", s.pool != nil)

	ttl := config.TTLDuration(s.cfg.Quiz.BankTTL, 10*time.Minute)
	if s.redis != nil {
		s.banks = infraredis.NewBankRepository(s.redis, loader, ttl)
	} else {
		s.banks = memory.NewBankRepository(loader, ttl)
	}
	return nil
}

func (s *services) wireStores() error {
	quizTTL := config.TTLDuration(s.cfg.Quiz.TTL, 24*time.Hour)
	if s.redis != nil {
		store := infraredis.NewQuizStore(s.redis, quizTTL)
		s.quizzes, s.attempts = store, store
		s.rankings = infraredis.NewRankingStore(s.redis)
	} else {
		store := memory.NewQuizStore(quizTTL)
		s.quizzes, s.attempts = store, store
		s.rankings = memory.NewRankingStore()
	}

	if s.pool != nil {
		s.directory = postgres.NewDirectory(s.pool)
		s.attempts = postgres.NewAttemptRepository(s.pool)
		return nil
	}

	dir := memory.NewDirectory()
	s.directory = dir
	if s.cfg.Directory.SeedFile == "" {
		s.logger.Warn("postgres not configured and no directory seed; rankings stay empty")
		return nil
	}
	seed, err := memory.ReadDirectorySeed(s.cfg.Directory.SeedFile)
	if err != nil {
		return fmt.Errorf("read directory seed: %w", err)
	}
	dir.Seed(seed)
	s.logger.Info("directory seeded",
		"classes", len(seed.Classes),
		"students", len(seed.Students),
		"enrollments", len(seed.Enrollments))
	return nil
}

// events returns the score change publisher. With a broker configured, changes go through
// the score.changed queue and a consumer applies them; otherwise they are applied inline.
func (s *services) events(ctx context.Context) (app.EventPublisher, error) {
	if s.cfg.RabbitMQ.URL == "" {
		return app.NewInlineEvents(s.trigger, s.logger), nil
	}

	client, err := rabbitmq.Dial(s.cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() { _ = client.Close() })

	msgs, err := client.Consume(rabbitmq.ScoreChangedQueue, s.cfg.RabbitMQ.Prefetch)
	if err != nil {
		return nil, err
	}
	consumer := rabbitmq.NewConsumer(s.trigger, s.logger)
	go func() {
		if err := consumer.Run(ctx, msgs); err != nil && ctx.Err() == nil {
			s.logger.Error("score consumer stopped", "error", err)
		}
	}()
	return rabbitmq.NewScoreEvents(client), nil
}

func (s *services) quizService(events app.EventPublisher) *app.QuizService {
	return app.NewQuizService(app.Stores{
		Banks:    s.banks,
		Quizzes:  s.quizzes,
		Attempts: s.attempts,
		Scores:   s.directory,
	}, events, quiz.NewAssembler(s.mode), s.cfg.Quiz.ModulesCount, s.logger)
}

// Close releases connections in reverse order of acquisition.
func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
