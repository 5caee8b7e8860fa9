package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun/migrate"

	"quiz-roulette-service/internal/app"
	"quiz-roulette-service/internal/domain"
	infrapg "quiz-roulette-service/internal/infra/postgres"
	pgmigrations "quiz-roulette-service/internal/infra/postgres/migrations"
	infraredis "quiz-roulette-service/internal/infra/redis"

	"database/sql"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

func TestFullRoundAgainstPostgresAndRedis(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuestions(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	questions := infraredis.NewQuestionCache(redisClient, infrapg.NewQuestionRepository(pool), 5*time.Minute)
	rounds := infraredis.NewRoundStore(redisClient, 5*time.Minute)
	scores := infrapg.NewLeaderboardStore(pool)

	roundService := app.NewRoundService(rounds, questions, 30)
	leaderboardService := app.NewLeaderboardService(scores, 20)

	const session = "session-ana"

	// First round: clear the whole theme queue (two questions per theme).
	if _, err := roundService.StartRound(ctx, session, "Ana", nil); err != nil {
		t.Fatalf("start round: %v", err)
	}
	answered := 0
	for {
		turn, err := roundService.NextQuestion(ctx, session)
		if errors.Is(err, domain.ErrRoundComplete) {
			break
		}
		if err != nil {
			t.Fatalf("next question: %v", err)
		}
		feedback, _, err := roundService.SubmitAnswer(ctx, session, turn.Question.ID, turn.Token,
			string(turn.Question.Correct), turn.Question.Correct)
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if !feedback.WasCorrect {
			t.Fatalf("expected correct answer, got %+v", feedback)
		}

		// Replays over Redis state must be rejected too.
		if _, _, err := roundService.SubmitAnswer(ctx, session, turn.Question.ID, turn.Token,
			string(turn.Question.Correct), turn.Question.Correct); !errors.Is(err, domain.ErrAnswerRejected) {
			t.Fatalf("expected replay rejection, got %v", err)
		}
		answered++
	}
	if answered != 2 {
		t.Fatalf("expected 2 questions in the theme, answered %d", answered)
	}

	final, err := roundService.EndRound(ctx, session)
	if err != nil {
		t.Fatalf("end round: %v", err)
	}
	if final.Score() != 2 {
		t.Fatalf("expected score 2, got %d", final.Score())
	}

	promotion, err := leaderboardService.FinishRound(ctx, "Ana", final.Score(), domain.RankWeekly)
	if err != nil {
		t.Fatalf("finish round: %v", err)
	}
	if promotion.Kind != domain.PromotionFirstEntry {
		t.Fatalf("expected first entry, got %+v", promotion)
	}

	entry, err := scores.Entry(ctx, "Ana")
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if entry.BestScore != 2 || entry.TotalPoints != 2 || entry.GamesPlayed != 1 {
		t.Fatalf("expected {2,2,1}, got %+v", entry)
	}

	// Second round aggregates instead of overwriting.
	if _, err := roundService.StartRound(ctx, session, "Ana", nil); err != nil {
		t.Fatalf("restart: %v", err)
	}
	turn, err := roundService.NextQuestion(ctx, session)
	if err != nil {
		t.Fatalf("next question: %v", err)
	}
	if _, _, err := roundService.SubmitAnswer(ctx, session, turn.Question.ID, turn.Token,
		string(turn.Question.Correct), turn.Question.Correct); err != nil {
		t.Fatalf("submit: %v", err)
	}
	final, err = roundService.EndRound(ctx, session)
	if err != nil {
		t.Fatalf("end second round: %v", err)
	}
	if _, err := leaderboardService.FinishRound(ctx, "Ana", final.Score(), domain.RankWeekly); err != nil {
		t.Fatalf("finish second round: %v", err)
	}

	entry, err = scores.Entry(ctx, "Ana")
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if entry.BestScore != 2 || entry.TotalPoints != 3 || entry.GamesPlayed != 2 {
		t.Fatalf("expected {2,3,2}, got %+v", entry)
	}

	// Period rollover zeroes weekly counters, keeps the all-time best.
	if err := scores.ResetWeek(ctx, "2099-W01"); err != nil {
		t.Fatalf("reset week: %v", err)
	}
	entry, err = scores.Entry(ctx, "Ana")
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if entry.TotalPoints != 0 || entry.GamesPlayed != 0 || entry.BestScore != 2 {
		t.Fatalf("expected zeroed weekly counters, got %+v", entry)
	}
	if err := scores.ResetWeek(ctx, "2099-W01"); err != nil {
		t.Fatalf("second reset: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
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
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
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

// seedQuestions migrates the schema and inserts two questions per theme,
// every one with correct option B.
func seedQuestions(t *testing.T, ctx context.Context, dsn string) {
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

	for _, theme := range domain.Themes() {
		for i := 1; i <= 2; i++ {
			_, err := db.ExecContext(ctx, `
				INSERT INTO questions (theme, statement, opt_a, opt_b, opt_c, opt_d, correct)
				VALUES (?, ?, 'wrong', 'right', 'wrong', 'wrong', 'B')
			`, string(theme), fmt.Sprintf("%s question %d", theme, i))
			if err != nil {
				t.Fatalf("insert question: %v", err)
			}
		}
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
