// Package config loads settings from .env and the process environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
)

type Server struct {
	Addr        string
	Env         string
	DatabaseURL string

	JWTSecret string
	TokenTTL  time.Duration

	WordsFile         string
	DictionaryURL     string
	DictionaryTimeout time.Duration

	BoardSize   int
	TurnTimeout time.Duration
	RoundCap    int
	ScoreCap    int
	IdleTimeout time.Duration

	Bots     bool
	BotDelay time.Duration
}

type Client struct {
	ServerURL         string
	Token             string
	Name              string
	ReconnectBase     time.Duration
	ReconnectMax      time.Duration
	ReconnectAttempts int
	SendRetry         time.Duration
}

func (s Server) Development() bool { return s.Env == "development" }

// LoadServer reads .env files when present; the environment wins over them.
func LoadServer(files ...string) (Server, error) {
	loadDotenv(files)
	var errs error
	cfg := Server{
		Addr:              str("ADDR", ":8080"),
		Env:               str("APP_ENV", "production"),
		DatabaseURL:       str("DATABASE_URL", ""),
		JWTSecret:         str("JWT_SECRET", ""),
		TokenTTL:          dur("TOKEN_TTL", 24*time.Hour, &errs),
		WordsFile:         str("WORDS_FILE", ""),
		DictionaryURL:     str("DICTIONARY_URL", ""),
		DictionaryTimeout: dur("DICTIONARY_TIMEOUT", 2*time.Second, &errs),
		BoardSize:         num("BOARD_SIZE", 5, &errs),
		TurnTimeout:       dur("TURN_TIMEOUT", 0, &errs),
		RoundCap:          num("ROUND_CAP", 5, &errs),
		ScoreCap:          num("SCORE_CAP", 0, &errs),
		IdleTimeout:       dur("LOBBY_IDLE_TIMEOUT", 10*time.Minute, &errs),
		Bots:              flag("BOTS", true, &errs),
		BotDelay:          dur("BOT_DELAY", 1500*time.Millisecond, &errs),
	}
	if cfg.BoardSize < 3 {
		errs = multierr.Append(errs, fmt.Errorf("BOARD_SIZE must be at least 3, got %d", cfg.BoardSize))
	}
	return cfg, errs
}

func LoadClient(files ...string) (Client, error) {
	loadDotenv(files)
	var errs error
	cfg := Client{
		ServerURL:         str("SERVER_URL", "ws://localhost:8080/ws"),
		Token:             str("TOKEN", ""),
		Name:              str("PLAYER_NAME", ""),
		ReconnectBase:     dur("RECONNECT_BASE", time.Second, &errs),
		ReconnectMax:      dur("RECONNECT_MAX", 30*time.Second, &errs),
		ReconnectAttempts: num("RECONNECT_ATTEMPTS", 10, &errs),
		SendRetry:         dur("SEND_RETRY", 500*time.Millisecond, &errs),
	}
	return cfg, errs
}

func loadDotenv(files []string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// a missing file is fine; the environment alone is enough
		_ = godotenv.Load(f)
	}
}

func str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func num(key string, def int, errs *error) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = multierr.Append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func flag(key string, def bool, errs *error) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = multierr.Append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func dur(key string, def time.Duration, errs *error) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = multierr.Append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
