package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pivogram/pivogram/internal/api"
	"github.com/pivogram/pivogram/internal/config"
	"github.com/pivogram/pivogram/internal/server"
	"github.com/pivogram/pivogram/internal/stats"
	"github.com/pivogram/pivogram/internal/store"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

var (
	addr           string
	dbPath         string
	dataDir        string
	publicDir      string
	signingKey     string
	maxHistory     int
	allowedOrigins stringSliceFlag
)

func main() {
	// .env is optional; flags and real environment win
	_ = godotenv.Load()

	flag.StringVar(&addr, "addr", envOr("PIVOGRAM_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&dbPath, "db-path", envOr("PIVOGRAM_DB_PATH", "pivogram.db"), "sqlite database path")
	flag.StringVar(&dataDir, "data-dir", envOr("PIVOGRAM_DATA_DIR", "uploads"), "directory for uploaded files")
	flag.StringVar(&publicDir, "public-dir", envOr("PIVOGRAM_PUBLIC_DIR", "public"), "directory with static assets")
	flag.StringVar(&signingKey, "signing-key", envOr("PIVOGRAM_SIGNING_KEY", defaultSigningKey), "base64 encoded signing key")
	flag.IntVar(&maxHistory, "max-history", envIntOr("PIVOGRAM_MAX_HISTORY", config.DefaultMaxHistory), "maximum messages retained per room or conversation")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[pivogram] ", log.LstdFlags)

	if origins := os.Getenv("PIVOGRAM_ALLOWED_ORIGINS"); origins != "" && len(allowedOrigins) == 0 {
		allowedOrigins = strings.Split(origins, ",")
	}

	cfg, err := config.NewConfig(addr, dbPath, dataDir, publicDir, signingKey, allowedOrigins, maxHistory)
	if err != nil {
		logger.Fatal("config:", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatal("create data dir:", err)
	}

	repo, err := store.NewSqliteChatRepository(cfg.DatabasePath, cfg.MaxHistory)
	if err != nil {
		logger.Fatal("open store:", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Println("store close:", err)
		}
	}()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	chatServer, err := server.NewChatServer(logger, repo, statsUpdater)
	if err != nil {
		logger.Fatal("new chat server:", err)
	}

	app, err := api.NewPivoGramApp(mux, logger, chatServer, repo, statsUpdater, cfg)
	if err != nil {
		logger.Fatal("new app:", err)
	}

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go chatServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := app.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down chat server...")
	if err := chatServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("chat server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
