package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"contest-engine/internal/app"
	"contest-engine/internal/config"
	"contest-engine/internal/domain"
	"contest-engine/internal/infra/memory"
	"contest-engine/internal/infra/outbox"
	"contest-engine/internal/infra/postgres"
	"contest-engine/internal/infra/rabbitmq"
	inforedis "contest-engine/internal/infra/redis"
	transport "contest-engine/internal/transport/http"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the contest server",
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
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
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
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
	}
	redisTTL := config.Duration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.QuestionLoader = memory.NewStaticQuestionLoader(sampleQuestionSets())
	if pool != nil {
		loader = postgres.NewQuestionStore(pool)
	}

	questionTTL := config.Duration(cfg.Questions.TTL, 10*time.Minute)
	var questions app.QuestionSource
	if redisClient != nil {
		questions = inforedis.NewQuestionCache(redisClient, loader, questionTTL)
	} else {
		questions = memory.NewQuestionSource(loader, questionTTL)
	}

	memStorage := memory.NewStorage()
	var storage app.Storage = memStorage
	if cfg.Postgres.URL != "" {
		db := openBun(cfg.Postgres.URL)
		defer db.Close()
		storage = postgres.NewResultStore(db)
	}

	var (
		rooms       app.RoomRepository
		redisRooms  *inforedis.RoomStore
		checkpoints app.Checkpointer = memStorage
		sinks       []app.EventSink
	)
	if redisClient != nil {
		instance := cfg.Redis.Instance
		if instance == "" {
			instance = instanceID()
		}
		redisRooms = inforedis.NewRoomStore(redisClient, redisTTL, instance)
		rooms = redisRooms
		checkpoints = inforedis.NewCheckpoints(redisClient, 24*time.Hour)
		sinks = append(sinks, inforedis.NewEventPublisher(redisClient))
	} else {
		rooms = memory.NewRoomStore()
	}
	if cfg.AMQP.URL != "" {
		exchange := cfg.AMQP.Exchange
		if exchange == "" {
			exchange = "contest.events"
		}
		publisher, err := rabbitmq.Dial(cfg.AMQP.URL, exchange)
		if err != nil {
			return err
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
	}

	writer := outbox.NewWriter(outbox.Options{
		InitialInterval: config.Duration(cfg.Outbox.InitialInterval, 100*time.Millisecond),
		MaxInterval:     config.Duration(cfg.Outbox.MaxInterval, 10*time.Second),
		MaxElapsed:      config.Duration(cfg.Outbox.MaxElapsed, 2*time.Minute),
	}, logger)

	defaults := app.DefaultSettings()
	engine := app.NewEngine(app.Options{
		Rooms:       rooms,
		Questions:   questions,
		Storage:     storage,
		Checkpoints: checkpoints,
		Sinks:       sinks,
		Dispatcher:  writer,
		Settings: app.Settings{
			LobbyCountdown: config.Duration(cfg.Engine.LobbyCountdown, defaults.LobbyCountdown),
			StartCountdown: config.Duration(cfg.Engine.StartCountdown, defaults.StartCountdown),
			RevealDuration: config.Duration(cfg.Engine.RevealDuration, defaults.RevealDuration),
			EvictionGrace:  config.Duration(cfg.Engine.EvictionGrace, defaults.EvictionGrace),
			FetchTimeout:   config.Duration(cfg.Engine.FetchTimeout, defaults.FetchTimeout),
		},
		Logger: logger,
	})
	defer engine.Close()

	if _, err := engine.Recover(ctx); err != nil {
		logger.Error("recover rooms", "error", err)
	}

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(engine, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return writer.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("starting contest service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if redisRooms != nil {
		g.Go(func() error {
			refreshOwnership(gctx, redisRooms, redisTTL/3, logger)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func refreshOwnership(ctx context.Context, rooms *inforedis.RoomStore, every time.Duration, logger *slog.Logger) {
	if every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rooms.Refresh(ctx); err != nil {
				logger.Warn("refresh room ownership", "error", err)
			}
		}
	}
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "contest-engine"
	}
	return host + "-" + uuid.NewString()[:8]
}

// sampleQuestionSets provides a minimal question set; configure Postgres to serve real sets.
func sampleQuestionSets() map[string][]domain.Question {
	return map[string][]domain.Question{
		"general": {
			{ID: "q1", Text: "What is 2 + 2?", Options: []string{"3", "4", "5", "22"}, CorrectOptionIndex: 1},
			{ID: "q2", Text: "Which planet is known as the red planet?", Options: []string{"Venus", "Mars", "Jupiter"}, CorrectOptionIndex: 1},
			{ID: "q3", Text: "How many continents are there?", Options: []string{"5", "6", "7", "8"}, CorrectOptionIndex: 2},
			{ID: "q4", Text: "What is the chemical symbol for gold?", Options: []string{"Ag", "Au", "Gd"}, CorrectOptionIndex: 1},
			{ID: "q5", Text: "Which ocean is the largest?", Options: []string{"Atlantic", "Indian", "Pacific", "Arctic"}, CorrectOptionIndex: 2},
		},
	}
}
