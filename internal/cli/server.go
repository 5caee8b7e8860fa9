package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quiz-roulette-service/internal/app"
	"quiz-roulette-service/internal/config"
	"quiz-roulette-service/internal/domain"
	"quiz-roulette-service/internal/infra/memory"
	infrapg "quiz-roulette-service/internal/infra/postgres"
	infraredis "quiz-roulette-service/internal/infra/redis"
	transport "quiz-roulette-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia game server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	roundTTL := config.TTLDuration(cfg.Game.RoundTTL, time.Hour)
	questionTTL := config.TTLDuration(cfg.Game.QuestionTTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var questions app.QuestionRepository = memory.NewQuestionBank(sampleQuestions())
	if pool != nil {
		questions = infrapg.NewQuestionRepository(pool)
	}
	if redisClient != nil && pool != nil {
		questions = infraredis.NewQuestionCache(redisClient, infrapg.NewQuestionRepository(pool), questionTTL)
	}

	var rounds app.RoundStore = memory.NewRoundStore()
	if redisClient != nil {
		rounds = infraredis.NewRoundStore(redisClient, roundTTL)
	}

	var scores app.LeaderboardStore = memory.NewLeaderboardStore()
	if pool != nil {
		scores = infrapg.NewLeaderboardStore(pool)
	}

	roundService := app.NewRoundService(rounds, questions, cfg.Game.ScoreCap)
	leaderboardService := app.NewLeaderboardService(scores, cfg.Leaderboard.TopN)

	handler := transport.NewHandler(roundService, leaderboardService, questions)
	wsHandler := transport.NewWSHandler(leaderboardService)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	handler.Register(mux)
	mux.HandleFunc("/ws/leaderboard", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz roulette service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuestions provides a minimal bank covering every theme so the game is
// playable without Postgres; production uses the seeded database.
func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: 1, Theme: domain.ThemeSports, Statement: "How many players are on the field per soccer team?",
			OptionA: "9", OptionB: "10", OptionC: "11", OptionD: "12", Correct: domain.OptionC},
		{ID: 2, Theme: domain.ThemeTVMovies, Statement: "Which movie features the ship Titanic?",
			OptionA: "Avatar", OptionB: "Titanic", OptionC: "Gladiator", OptionD: "Jaws", Correct: domain.OptionB},
		{ID: 3, Theme: domain.ThemeGames, Statement: "What color is Pac-Man?",
			OptionA: "Yellow", OptionB: "Red", OptionC: "Blue", OptionD: "Green", Correct: domain.OptionA},
		{ID: 4, Theme: domain.ThemeMusic, Statement: "How many strings does a standard guitar have?",
			OptionA: "4", OptionB: "5", OptionC: "6", OptionD: "7", Correct: domain.OptionC},
		{ID: 5, Theme: domain.ThemeLogic, Statement: "What is 2 + 2?",
			OptionA: "3", OptionB: "4", OptionC: "5", OptionD: "22", Correct: domain.OptionB},
		{ID: 6, Theme: domain.ThemeHistory, Statement: "In which year did World War II end?",
			OptionA: "1942", OptionB: "1944", OptionC: "1945", OptionD: "1950", Correct: domain.OptionC},
		{ID: 7, Theme: domain.ThemeMisc, Statement: "How many continents are there?",
			OptionA: "5", OptionB: "6", OptionC: "7", OptionD: "8", Correct: domain.OptionC},
	}
}
