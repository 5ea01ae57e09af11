package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/handshape-backend/internal/archive"
	"github.com/DoyleJ11/handshape-backend/internal/config"
	"github.com/DoyleJ11/handshape-backend/internal/engine"
	"github.com/DoyleJ11/handshape-backend/internal/httpapi"
	"github.com/DoyleJ11/handshape-backend/internal/hub"
	"github.com/DoyleJ11/handshape-backend/internal/lobby"
	"github.com/DoyleJ11/handshape-backend/internal/logging"
	"github.com/DoyleJ11/handshape-backend/internal/prompt"
	"github.com/DoyleJ11/handshape-backend/internal/scoring"
	"github.com/DoyleJ11/handshape-backend/internal/ws"
)

type flags struct {
	addr    string
	envFile string
	rounds  int
}

func newCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:           "handshape-server",
		Short:         "Session coordinator for the hand-shape party game.",
		Args:          cobra.ExactArgs(0),
		Version:       releaseVersion,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(f.envFile)
			if err != nil {
				return err
			}
			fs := cmd.Flags()
			if fs.Changed("addr") {
				cfg.HTTPAddr = f.addr
			}
			if fs.Changed("rounds") {
				cfg.TotalRounds = f.rounds
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&f.addr, "addr", "a", ":8080", "address to listen on (env: HTTP_ADDR)")
	fs.StringVar(&f.envFile, "env-file", ".env", "dotenv file to load if present")
	fs.IntVarP(&f.rounds, "rounds", "r", 3, "rounds per game (env: TOTAL_ROUNDS)")

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})

	return cmd
}

func run(ctx context.Context, cfg *config.Config) (err error) {
	log, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	catalog, err := prompt.LoadCatalog(cfg.PromptsFile)
	if err != nil {
		return err
	}

	evaluator, err := newEvaluator(ctx, cfg)
	if err != nil {
		return err
	}
	scorer := scoring.NewScorer(evaluator, scoring.Options{
		Timeout:     cfg.ScoreTimeout,
		Concurrency: cfg.ScoreConcurrency,
	}, log.Named("scoring"))

	var recorder archive.Recorder = archive.Nop{}
	if cfg.DatabaseURL != "" {
		gr, openErr := archive.Open(cfg.DatabaseURL)
		if openErr != nil {
			return openErr
		}
		defer func() { err = multierr.Append(err, gr.Close()) }()
		recorder = gr
	}

	lobbyCtx, stopLobby := context.WithCancel(context.Background())
	lb := lobby.NewLobby(lobbyCtx, hub.New(log.Named("hub")), lobby.Options{
		Rules:        engine.Rules{TotalRounds: cfg.TotalRounds, MaxPlayers: cfg.MaxPlayers},
		Catalog:      catalog,
		Scorer:       scorer,
		Recorder:     recorder,
		RoundTimeout: cfg.RoundTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		Logger:       log,
	})

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Lobby:     lb,
			Catalog:   catalog,
			PublicURL: cfg.PublicURL,
			WS: ws.Options{
				OriginPatterns: cfg.AllowedOrigins,
				PingInterval:   cfg.PingInterval,
				Logger:         log,
			},
			Logger: log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		stopLobby()
		return fmt.Errorf("listening on %s: %w", cfg.HTTPAddr, err)
	}
	log.Info("listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("scorer", cfg.Scorer),
		zap.Int("total_rounds", cfg.TotalRounds),
		zap.Bool("archive", cfg.DatabaseURL != ""),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Lobby first: it closes every outbox, so websocket handlers return
		// and Shutdown is not left waiting on them.
		stopLobby()
		var errs error
		select {
		case <-lb.Done():
		case <-shutdownCtx.Done():
			errs = multierr.Append(errs, errors.New("lobby did not stop in time"))
		}
		return multierr.Append(errs, srv.Shutdown(shutdownCtx))
	})

	return g.Wait()
}

func newEvaluator(ctx context.Context, cfg *config.Config) (scoring.Evaluator, error) {
	switch cfg.Scorer {
	case config.ScorerRandom:
		return scoring.NewRandom(nil), nil
	case config.ScorerGemini:
		return scoring.NewGemini(ctx, scoring.GeminiOptions{
			APIKey:     cfg.GeminiAPIKey,
			Model:      cfg.GeminiModel,
			BaseURL:    cfg.GeminiEndpoint,
			HTTPClient: &http.Client{Timeout: cfg.ScoreTimeout + 5*time.Second},
		})
	default:
		return nil, fmt.Errorf("unknown scorer %q", cfg.Scorer)
	}
}
