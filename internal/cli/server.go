package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backtrace-quiz-service/internal/app"
	"backtrace-quiz-service/internal/config"
	"backtrace-quiz-service/internal/domain"
	"backtrace-quiz-service/internal/infra/memory"
	pgstore "backtrace-quiz-service/internal/infra/postgres"
	redisstore "backtrace-quiz-service/internal/infra/redis"
	transport "backtrace-quiz-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
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
		finalPort = "5000"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var source memory.QuestionSource = memory.NewStaticQuestionSource(sampleQuestions())
	if pool != nil {
		source = pgstore.NewQuestionStore(pool)
	}

	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)
	var questions app.QuestionRepository
	if redisClient != nil {
		questions = redisstore.NewQuestionRepository(redisClient, source, questionTTL)
	} else {
		questions = memory.NewQuestionRepository(source, questionTTL)
	}

	var sessions app.SessionStore
	if pool != nil {
		sessions = pgstore.NewSessionStore(pool)
	} else {
		sessions = memory.NewSessionStore()
		log.Printf("no postgres configured, sessions are in-memory and will not survive restarts")
	}

	if cfg.Admin.Name == "" {
		log.Printf("no admin name configured, admin endpoints are disabled")
	}
	service := app.NewQuizService(sessions, questions, cfg.Admin.Name)

	handler := transport.NewHandler(service)
	feed := transport.NewLeaderboardFeed(service, config.TTLDuration(cfg.Admin.FeedInterval, 5*time.Second))

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.HandleFunc("/api/admin/leaderboard/ws", feed.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.CORS(cfg.Server.CORSOrigin, mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz service on :%s", finalPort)
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

// sampleQuestions is a minimal dev question set used when no Postgres is
// configured; production loads the full set via the seed command.
func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			Number:        1,
			Text:          "Room Light Automation: Person enters room, light turns on. Which components are needed?",
			Options:       []string{"Motion Sensor, Controller, Light", "Temperature Sensor, Controller, Light", "Motion Sensor, Speaker, Light", "Camera, Controller, Light"},
			CorrectOption: 0,
			Category:      "logic",
			Difficulty:    "easy",
		},
		{
			Number:        2,
			Text:          "ATM Withdrawal: Insert card, enter PIN, cash dispensed. Which components are needed?",
			Options:       []string{"Card Reader, Keypad, Bank Server, Cash Dispenser", "Card Reader, Keypad, Bank Server, Speaker", "Card Reader, Display, Bank Server, Cash Dispenser", "Camera, Keypad, Bank Server, Cash Dispenser"},
			CorrectOption: 0,
			Category:      "cs-basics",
			Difficulty:    "medium",
		},
		{
			Number:        3,
			Text:          "Traffic Signal: Red, yellow, green cycle. Which components are needed?",
			Options:       []string{"Timer, Controller, Signal Lights, Power Supply", "Timer, Camera, Signal Lights, Power Supply", "Timer, Controller, Display, Power Supply", "Motion Sensor, Controller, Signal Lights, Power Supply"},
			CorrectOption: 0,
			Category:      "general",
			Difficulty:    "easy",
		},
	}
}
