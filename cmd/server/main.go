package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/wordhex-backend/internal/auth"
	"github.com/DoyleJ11/wordhex-backend/internal/bot"
	"github.com/DoyleJ11/wordhex-backend/internal/config"
	"github.com/DoyleJ11/wordhex-backend/internal/dictionary"
	"github.com/DoyleJ11/wordhex-backend/internal/engine"
	"github.com/DoyleJ11/wordhex-backend/internal/httpapi"
	"github.com/DoyleJ11/wordhex-backend/internal/hub"
	"github.com/DoyleJ11/wordhex-backend/internal/store"
)

func main() {
	cfg, err := config.LoadServer(".env")
	if err != nil {
		// logger not configured yet
		zap.NewExample().Fatal("config", zap.Error(err))
	}

	log, err := newLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(cfg config.Server) (*zap.Logger, error) {
	if cfg.Development() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg config.Server, log *zap.Logger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, st.Close()) }()

	oracle, words, err := openDictionary(cfg, log)
	if err != nil {
		return err
	}
	var bots *bot.Player
	if cfg.Bots {
		bots = bot.New(words.Words(), bot.Options{})
	}

	iss := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
	if !iss.Enabled() {
		log.Warn("JWT_SECRET not set; player ids are taken from clients")
	}

	h := hub.NewHub(ctx, hub.Config{
		Rules: engine.Rules{
			BoardSize:   cfg.BoardSize,
			TurnTimeout: cfg.TurnTimeout,
			RoundCap:    cfg.RoundCap,
			ScoreCap:    cfg.ScoreCap,
		},
		Oracle:      oracle,
		Store:       st,
		Logger:      log,
		IdleTimeout: cfg.IdleTimeout,
		Bots:        bots,
		BotDelay:    cfg.BotDelay,
	})

	var origins []string
	if cfg.Development() {
		origins = []string{"localhost:*", "127.0.0.1:*"}
	}
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Hub:            h,
			Issuer:         iss,
			Logger:         log,
			OriginPatterns: origins,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// the hub and its lobbies stop with ctx
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func openStore(cfg config.Server, log *zap.Logger) (store.LobbyStore, error) {
	if cfg.DatabaseURL == "" {
		log.Info("DATABASE_URL not set; lobbies are kept in memory")
		return store.NewMemoryStore(), nil
	}
	gs, err := store.Open(cfg.DatabaseURL, log)
	if err != nil {
		return nil, err
	}
	return gs, nil
}

// openDictionary also returns a local list for bots to draw words from; a
// remote dictionary cannot be enumerated, so they fall back to the embedded
// one.
func openDictionary(cfg config.Server, log *zap.Logger) (dictionary.Oracle, *dictionary.WordList, error) {
	var o dictionary.Oracle
	wl := dictionary.Default()
	switch {
	case cfg.DictionaryURL != "":
		o = dictionary.NewHTTPOracle(cfg.DictionaryURL, nil)
		log.Info("remote dictionary", zap.String("url", cfg.DictionaryURL))
	case cfg.WordsFile != "":
		var err error
		wl, err = dictionary.LoadFile(cfg.WordsFile)
		if err != nil {
			return nil, nil, err
		}
		o = wl
		log.Info("word list loaded", zap.String("file", cfg.WordsFile))
	default:
		o = wl
	}
	return dictionary.WithTimeout(o, cfg.DictionaryTimeout), wl, nil
}
