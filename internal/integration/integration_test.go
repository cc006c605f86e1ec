package integration

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quizrank-service/internal/app"
	"quizrank-service/internal/domain"
	"quizrank-service/internal/infra/memory"
	"quizrank-service/internal/infra/postgres"
	pgmigrations "quizrank-service/internal/infra/postgres/migrations"
	infraredis "quizrank-service/internal/infra/redis"
	"quizrank-service/internal/quiz"
	"quizrank-service/internal/ranking"
)

func TestQuizAttemptUpdatesClassRanking(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	bank, err := memory.ReadBankFile("../../config/banks/avaliacao-antropometrica.yaml")
	if err != nil {
		t.Fatalf("read bank: %v", err)
	}
	loader := postgres.NewBankLoader(pool)
	if err := loader.SaveBank(ctx, bank); err != nil {
		t.Fatalf("seed bank: %v", err)
	}

	dir := postgres.NewDirectory(pool)
	mustDo(t, dir.PutClass(ctx, domain.ClassInfo{ID: "class-1", Name: "Nutrição A", Status: domain.ClassStatusActive}))
	mustDo(t, dir.PutStudent(ctx, domain.StudentProfile{ID: "stu-1", DisplayName: "Ana Souza", Email: "ana@example.com"}))
	mustDo(t, dir.PutStudent(ctx, domain.StudentProfile{ID: "stu-2", Name: "Bruno Lima"}))
	mustDo(t, dir.Enroll(ctx, "class-1", "stu-1", domain.ClassStatusActive))
	mustDo(t, dir.Enroll(ctx, "class-1", "stu-2", domain.ClassStatusActive))
	mustDo(t, dir.SaveScore(ctx, domain.UnifiedScore{StudentID: "stu-2", NormalizedScore: 10, ModuleScores: map[string]float64{"outro": 40}}))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rankings := infraredis.NewRankingStore(redisClient)
	settings := ranking.DefaultSettings()
	settings.BatchPause = time.Millisecond
	agg := ranking.NewAggregator(dir, rankings, settings, logger)
	if _, err := agg.BuildFull(ctx, "class-1"); err != nil {
		t.Fatalf("initial build: %v", err)
	}

	service := app.NewQuizService(app.Stores{
		Banks:    infraredis.NewBankRepository(redisClient, loader, time.Minute),
		Quizzes:  infraredis.NewQuizStore(redisClient, time.Hour),
		Attempts: postgres.NewAttemptRepository(pool),
		Scores:   dir,
	}, app.NewInlineEvents(ranking.NewTrigger(agg, dir, logger), logger), quiz.NewAssembler(quiz.ModeBalanced), 4, logger)

	q, err := service.GenerateQuiz(ctx, "stu-1", bank.ModuleID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(q.SelectedQuestions) != bank.QuestionsPerQuiz {
		t.Fatalf("expected %d questions, got %d", bank.QuestionsPerQuiz, len(q.SelectedQuestions))
	}
	answers := make(map[string]string, len(q.SelectedQuestions))
	for _, sq := range q.SelectedQuestions {
		answers[sq.OriginalID] = sq.ShuffledOptions[sq.CorrectOptionIndex]
	}
	attempt, err := service.SubmitAttempt(ctx, q.ID, app.Submission{StudentID: "stu-1", Answers: answers, TimeSpent: 300})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if attempt.Percentage != 100 || !attempt.Passed {
		t.Fatalf("expected a perfect attempt, got %+v", attempt.ScoreCalculation)
	}

	stored, err := postgres.NewAttemptRepository(pool).ListAttempts(ctx, "stu-1", bank.ModuleID)
	if err != nil || len(stored) != 1 {
		t.Fatalf("expected one stored attempt, got %d (%v)", len(stored), err)
	}

	doc, err := rankings.Get(ctx, "class-1")
	if err != nil {
		t.Fatalf("get ranking: %v", err)
	}
	if doc.StudentsCount != 2 || doc.Rankings[0].StudentID != "stu-1" || doc.Rankings[0].TotalNormalizedScore != 25 {
		t.Fatalf("expected Ana leading with 25, got %+v", doc.Rankings)
	}
	if doc.Revision < 2 {
		t.Fatalf("expected the upsert to bump the revision, got %d", doc.Revision)
	}

	report, err := agg.Verify(ctx, "class-1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !report.Consistent {
		t.Fatalf("expected consistent ranking, got %+v", report)
	}
}

func mustDo(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quizrank", "POSTGRES_PASSWORD": "quizrank", "POSTGRES_DB": "quizrank"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quizrank:quizrank@%s:%s/quizrank?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateSchema(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
