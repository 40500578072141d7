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

	"trivia-session-service/internal/app"
	"trivia-session-service/internal/config"
	"trivia-session-service/internal/domain"
	"trivia-session-service/internal/engine"
	"trivia-session-service/internal/infra/memory"
	pgloader "trivia-session-service/internal/infra/postgres"
	redisinfra "trivia-session-service/internal/infra/redis"
	transport "trivia-session-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia session server",
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

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgloader.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, loader, quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var persister engine.AttemptPersister
	if pool != nil {
		persister = pgloader.NewResultStore(pool)
	}

	var presence app.PresenceMarker
	if redisClient != nil {
		presence = redisinfra.NewPresenceMarker(redisClient, config.TTLDuration(cfg.Redis.TTL, time.Hour))
	}

	hub := transport.NewChannelHub()
	eng := engine.New(engine.NewRegistry(), hub, persister, engine.Options{
		QuestionTime:   config.Seconds(cfg.Quiz.QuestionSeconds, 30*time.Second),
		SettlePause:    config.Seconds(cfg.Quiz.PauseSeconds, 3*time.Second),
		RenderInterval: time.Duration(cfg.Quiz.RenderIntervalMS) * time.Millisecond,
		Scoring: engine.ScoringConfig{
			BasePoints:  cfg.Quiz.PointsPerQuestion,
			SpeedBonus:  cfg.Quiz.SpeedBonusMult,
			StreakBonus: cfg.Quiz.StreakBonusMult,
		},
		OnTerminal: func(summary domain.SessionSummary) {
			if presence != nil {
				presence.ClearActive(context.Background(), summary.ChannelID)
			}
			log.Printf("session %s on channel %s ended: %s", summary.SessionID, summary.ChannelID, summary.State)
		},
	})

	service := app.NewQuizService(quizRepo, eng, presence)
	wsHandler := transport.NewWSHandler(service, hub)
	apiHandler := transport.NewAPIHandler(service, cfg.Quiz.WaitSeconds)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	apiHandler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting trivia service on :%s", finalPort)
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

// sampleQuizzes provides fallback content when no database is configured.
func sampleQuizzes() map[string]domain.QuizConfig {
	return map[string]domain.QuizConfig{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warm-up trivia",
			Questions: []domain.QuestionData{
				{
					Text:          "What is 2 + 2?",
					Options:       []string{"3", "4", "5"},
					CorrectOption: 1,
					Points:        10,
					TimeLimitSec:  30,
				},
				{
					Text:          "Which planet is closest to the sun?",
					Options:       []string{"Venus", "Earth", "Mercury", "Mars"},
					CorrectOption: 2,
					Points:        10,
					TimeLimitSec:  30,
				},
			},
		},
	}
}
