package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"assessment-attempt-service/internal/app"
	"assessment-attempt-service/internal/attempt"
	"assessment-attempt-service/internal/config"
	"assessment-attempt-service/internal/domain"
	"assessment-attempt-service/internal/infra/grading"
	"assessment-attempt-service/internal/infra/memory"
	pgloader "assessment-attempt-service/internal/infra/postgres"
	redisinfra "assessment-attempt-service/internal/infra/redis"
	"assessment-attempt-service/internal/logger"
	transport "assessment-attempt-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the attempt server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logger.Setup(cfg.Log.Level, cfg.Log.Format)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger.Component(log, "migrate")); err != nil {
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

	checks := map[string]transport.HealthCheck{}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("pinging redis: %w", err)
		}
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 2*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pool.Close()
		checks["postgres"] = func(ctx context.Context) error { return pool.Ping(ctx) }
		log.Info().Msg("connected to postgres")
	}

	var loader memory.AssessmentLoader = memory.NewStaticAssessmentLoader(sampleAssessments())
	if pool != nil {
		loader = pgloader.NewAssessmentLoader(pool)
	}

	contentTTL := config.TTLDuration(cfg.Assessment.TTL, 10*time.Minute)
	var contents app.ContentRepository
	if redisClient != nil {
		contents = redisinfra.NewAssessmentRepository(redisClient, loader, contentTTL)
	} else {
		contents = memory.NewAssessmentRepository(loader, contentTTL)
	}

	var store app.AttemptRepository
	var escalator app.Escalator
	if redisClient != nil {
		store = redisinfra.NewAttemptStore(redisClient, redisTTL)
		escalator = redisinfra.NewEscalationQueue(redisClient)
	} else {
		store = memory.NewAttemptStore()
		escalator = memory.NewEscalationLog()
	}

	gradingTimeout := config.TTLDuration(cfg.Grading.Timeout, 15*time.Second)
	var grader attempt.Grader
	if cfg.Grading.URL != "" {
		grader = grading.NewClient(cfg.Grading.URL, gradingTimeout)
		log.Info().Str("url", cfg.Grading.URL).Msg("using remote grading backend")
	} else {
		grader = grading.NewLocalGrader(contents, cfg.Grading.PassingPercentage)
		log.Warn().Msg("grading.url not set; scoring attempts locally")
	}

	tick := config.TTLDuration(cfg.Attempt.TickInterval, time.Second)
	service := app.NewAttemptService(contents, store, grader, escalator,
		app.WithLogger(logger.Component(log, "attempts")),
		app.WithGradingTimeout(gradingTimeout),
		app.WithClockFactory(func() attempt.Clock { return attempt.NewTickerClock(tick) }),
	)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewRouter(service, logger.Component(log, "http"), checks),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("starting attempt service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// sampleAssessments seeds the static loader when no database is configured.
func sampleAssessments() map[string]domain.AssessmentContent {
	return map[string]domain.AssessmentContent{
		"demo": {
			Assessment: domain.Assessment{
				ID:              "demo",
				Title:           "Demo assessment",
				DurationMinutes: 5,
				TotalPoints:     3,
				QuestionIDs:     []string{"q1", "q2"},
			},
			Questions: []domain.Question{
				{
					ID: "q1", Order: 1, Text: "What is 2 + 2?", Points: 1, Type: domain.QuestionSingleSelect,
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5"},
					},
				},
				{
					ID: "q2", Order: 2, Text: "Which of these are prime?", Points: 2, Type: domain.QuestionMultiSelect,
					Options: []domain.Option{
						{ID: "o1", Text: "2", Correct: true},
						{ID: "o2", Text: "4"},
						{ID: "o3", Text: "7", Correct: true},
					},
				},
			},
		},
	}
}
