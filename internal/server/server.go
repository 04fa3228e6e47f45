package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/dukerupert/pointledger/internal/blob"
	"github.com/dukerupert/pointledger/internal/handler"
	"github.com/dukerupert/pointledger/internal/ledger"
	"github.com/dukerupert/pointledger/internal/metrics"
	"github.com/dukerupert/pointledger/internal/middleware"
	"github.com/dukerupert/pointledger/internal/model"
	"github.com/dukerupert/pointledger/internal/store"
	ws "github.com/dukerupert/pointledger/internal/websocket"
)

// Config carries the tunables the HTTP layer needs.
type Config struct {
	ActivityPoints  int
	SessionTTL      time.Duration
	RateLimit       int
	RateLimitWindow time.Duration
	WSOrigins       []string
}

type Server struct {
	db           *sqlx.DB
	hub          *ws.Hub
	blobs        blob.Store
	accounts     *ledger.AccountStore
	accountH     *handler.AccountHandler
	earningH     *handler.EarningHandler
	redemptionH  *handler.RedemptionHandler
	achievementH *handler.AchievementHandler
	sessionStore *store.SessionStore
	rateLimiter  *middleware.RateLimiter
	cfg          Config
	logger       *slog.Logger
}

func New(db *sqlx.DB, blobs blob.Store, cfg Config, logger *slog.Logger) *Server {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}

	hub := ws.NewHub(logger.With("component", "websocket"))

	accounts := ledger.NewAccountStore(logger.With("component", "accounts"))
	earning := ledger.NewEarningLedger(db, accounts, cfg.ActivityPoints, logger.With("component", "earning"))
	redemption := ledger.NewRedemptionWorkflow(db, accounts, logger.With("component", "redemption"))

	sessionStore := store.NewSessionStore(db, cfg.SessionTTL)
	achievementStore := store.NewAchievementStore(db)

	return &Server{
		db:           db,
		hub:          hub,
		blobs:        blobs,
		accounts:     accounts,
		accountH:     handler.NewAccountHandler(db, accounts, sessionStore, hub, logger.With("component", "account")),
		earningH:     handler.NewEarningHandler(earning, hub, logger.With("component", "earning_handler")),
		redemptionH:  handler.NewRedemptionHandler(redemption, hub, logger.With("component", "redemption_handler")),
		achievementH: handler.NewAchievementHandler(blobs, achievementStore, logger.With("component", "achievement")),
		sessionStore: sessionStore,
		rateLimiter:  middleware.NewRateLimiter(),
		cfg:          cfg,
		logger:       logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("POST /api/signup/{$}", s.rateLimitedHandler("signup", s.accountH.Signup))
	outerMux.HandleFunc("POST /api/signin/{$}", s.rateLimitedHandler("signin", s.accountH.Signin))
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.Handle("GET /metrics", metrics.Handler())
	if ds, ok := s.blobs.(*blob.DirStore); ok {
		outerMux.Handle("GET /media/", http.StripPrefix("/media/", http.FileServer(http.Dir(ds.Dir()))))
	}

	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.lookupAccount, s.logger.With("component", "auth"))
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(metrics.InstrumentHandler(outerMux))
}

func (s *Server) lookupAccount(ctx context.Context, id int64) (*model.Account, error) {
	return s.accounts.GetByID(ctx, s.db, id)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	w.Header().Set("Content-Type", "application/json")
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Error("health check", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) rateLimitedHandler(scope string, h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, scope, middleware.RealIP, s.cfg.RateLimit, s.cfg.RateLimitWindow, s.logger.With("component", "ratelimit"))
	return rl(h).ServeHTTP
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/signout/{$}", s.accountH.Signout)
	mux.HandleFunc("GET /api/user-profile/{$}", s.accountH.Profile)
	mux.HandleFunc("POST /api/update-points/{$}", s.accountH.UpdatePoints)

	// Earning
	mux.HandleFunc("GET /api/get_completed_forms/{$}", s.earningH.CompletedForms)
	mux.HandleFunc("POST /api/mark_form_completed/{$}", s.earningH.MarkCompleted)
	mux.HandleFunc("GET /api/count_forms_submitted/{$}", s.earningH.CountSubmitted)

	// Achievement evidence
	mux.HandleFunc("POST /api/upload_achievement_image/{$}", s.achievementH.Upload)
	mux.HandleFunc("GET /api/achievement_images/{$}", s.achievementH.List)

	// Redemption
	mux.HandleFunc("POST /api/redeem_reward/{$}", s.redemptionH.Redeem)
	mux.HandleFunc("GET /api/redemption_requests/{$}", s.redemptionH.List)
	mux.Handle("POST /api/approve_reward/{$}", middleware.RequireAdmin(http.HandlerFunc(s.redemptionH.Approve)))
	mux.Handle("POST /api/approve_rewards/{$}", middleware.RequireAdmin(http.HandlerFunc(s.redemptionH.ApproveMany)))
	mux.Handle("POST /api/deactivate_account/{$}", middleware.RequireAdmin(http.HandlerFunc(s.accountH.Deactivate)))

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.cfg.WSOrigins, s.logger.With("component", "websocket")))
}
