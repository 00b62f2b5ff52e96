package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/pivogram/pivogram/internal/config"
	"github.com/pivogram/pivogram/internal/server"
	"github.com/pivogram/pivogram/internal/stats"
	"github.com/pivogram/pivogram/internal/store"
	"github.com/teris-io/shortid"
)

type PivoGramApp struct {
	log            *log.Logger
	repo           store.ChatRepository
	srv            *http.Server
	cs             *server.ChatServer
	stats          stats.StatsProvider
	signingKey     []byte
	allowedOrigins []string
	dataDir        string
	generateConnId func() (string, error)
}

func NewPivoGramApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, repo store.ChatRepository, su stats.StatsProvider, cfg *config.Config) (*PivoGramApp, error) {
	sid, err := shortid.New(2, shortid.DefaultABC, uint64(time.Now().UnixNano()))
	if err != nil {
		return nil, fmt.Errorf("shortid: %w", err)
	}

	s := &PivoGramApp{
		log:            logger,
		repo:           repo,
		cs:             cs,
		stats:          su,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
		dataDir:        cfg.DataDir,
		generateConnId: sid.Generate,
	}

	su.RegisterMetric("NumUploads")

	mux.HandleFunc("POST /api/register", s.createAccount)
	mux.HandleFunc("POST /api/login", s.login)
	mux.HandleFunc("GET /api/me", s.authMiddleware(s.session))
	mux.HandleFunc("POST /api/logout", s.authMiddleware(s.logout))
	mux.HandleFunc("POST /api/upload/avatar", s.authMiddleware(s.uploadAvatar))
	mux.HandleFunc("POST /api/upload/photo", s.authMiddleware(s.uploadPhoto))
	mux.HandleFunc("GET /invite/{roomId}", s.invite)
	mux.HandleFunc("GET /health", s.healthcheck)
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))
	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.DataDir))))
	if cfg.PublicDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(cfg.PublicDir)))
	}

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s, nil
}

func (s *PivoGramApp) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *PivoGramApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
