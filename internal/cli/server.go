package cli

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"trivia-board/internal/app"
	"trivia-board/internal/config"
	"trivia-board/internal/domain"
	"trivia-board/internal/infra/memory"
	pginfra "trivia-board/internal/infra/postgres"
	redisinfra "trivia-board/internal/infra/redis"
	transport "trivia-board/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia board server",
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

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || cfg.Log.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg); err != nil {
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

	var store app.Store = memory.NewStore()
	var loader memory.GameLoader = memory.NewStaticGameLoader(sampleGames())
	if cfg.Postgres.URL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		bundb := bun.NewDB(sqldb, pgdialect.New())
		defer bundb.Close()
		store = pginfra.NewStore(bundb)

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		loader = pginfra.NewGameLoader(pool)
	}

	contentTTL := config.Duration(cfg.Content.TTL, 10*time.Minute)
	var content app.ContentRepository
	if redisClient != nil {
		content = redisinfra.NewContentCache(redisClient, loader, contentTTL)
	} else {
		content = memory.NewContentRepository(loader, contentTTL)
	}

	clock := clockwork.NewRealClock()
	coordinator := app.NewCoordinator(store, content, app.NewRegistry(), clock, app.Options{
		SessionDuration:          config.Duration(cfg.Session.Duration, 2*time.Hour),
		DefaultTimerSeconds:      cfg.Session.DefaultTimerSeconds,
		SelectPolicy:             app.SelectPolicy(cfg.Session.SelectPolicy),
		BroadcastAllOnDisconnect: cfg.Session.BroadcastAllOnDisconnect,
	})

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	sweeper := app.NewSweeper(store, clock, config.Duration(cfg.Sweeper.Interval, 5*time.Minute))
	go sweeper.Run(sweepCtx)

	handler := transport.NewHandler(coordinator, cfg.Admin.Token)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	handler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting trivia board server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server...")
	}
	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleGames provides a minimal demo board; production loads boards from
// the content store instead.
func sampleGames() map[uuid.UUID]domain.Game {
	gameID := uuid.MustParse("6f1d2c58-0a3b-4a6e-9a3c-2f8f1d7b0001")
	capitals := uuid.MustParse("6f1d2c58-0a3b-4a6e-9a3c-2f8f1d7b0002")
	return map[uuid.UUID]domain.Game{
		gameID: {
			ID:    gameID,
			Title: "Demo Board",
			Categories: []domain.Category{
				{
					ID:    capitals,
					Title: "Capitals",
					Questions: []domain.Question{
						{
							ID:     uuid.MustParse("6f1d2c58-0a3b-4a6e-9a3c-2f8f1d7b0101"),
							Text:   "Capital of France?",
							Answer: "Paris",
							Points: 100,
						},
						{
							ID:     uuid.MustParse("6f1d2c58-0a3b-4a6e-9a3c-2f8f1d7b0102"),
							Text:   "Capital of Japan?",
							Answer: "Tokyo",
							Points: 200,
						},
					},
				},
			},
		},
	}
}
