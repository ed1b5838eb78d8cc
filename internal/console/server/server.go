package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/aml-helpdesk/internal/console/handler"
	"github.com/xela07ax/aml-helpdesk/internal/infra"
	"github.com/xela07ax/aml-helpdesk/internal/infra/auth"
)

// Handlers - обработчики бизнес-доменов хелпдеска.
type Handlers struct {
	Predict  *handler.PredictHandler  // /api/manual
	Realtime *handler.RealtimeHandler // /api/realtime
	Stats    *handler.StatsHandler    // /api/stats
	Debug    *handler.DebugHandler    // /api/debug
}

type Server struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	handlers Handlers

	// nil - API открыт (ключ IdP не настроен)
	validator auth.TokenValidator

	// nil - метрики не экспортируются
	metrics http.Handler
}

// New инициализирует HTTP-сервер хелпдеска со всеми зависимостями.
func New(cfg *infra.Config, logger *zap.Logger, h Handlers, validator auth.TokenValidator, metrics http.Handler) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.Named("helpdesk-api"),
		cfg:       cfg,
		handlers:  h,
		validator: validator,
		metrics:   metrics,
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(Tracing(s.logger))
	if s.cfg.Server.LogRequests {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Get("/health", handler.Health)
	r.Get("/api/health", handler.Health)
	if s.metrics != nil {
		r.Handle(s.cfg.Metrics.Path, s.metrics)
	}

	// --- 3. API аналитика (RS256 токен, если ключ настроен) ---
	r.Group(func(r chi.Router) {
		if s.validator != nil {
			r.Use(auth.NewMiddleware(s.validator, s.logger))
		}

		r.Route("/api/manual", func(r chi.Router) {
			r.Post("/predict", s.handlers.Predict.Predict)
			r.Post("/predict/debug", s.handlers.Predict.PredictDebug)
			r.Post("/echo", s.handlers.Predict.Echo)
		})

		r.Route("/api/realtime", func(r chi.Router) {
			r.Get("/latest", s.handlers.Realtime.Latest)
			r.Get("/transactions", s.handlers.Realtime.Latest)
		})

		r.Route("/api/stats", func(r chi.Router) {
			r.Get("/summary", s.handlers.Stats.Summary)
			r.Get("/summary/raw", s.handlers.Stats.Raw)
		})

		r.Route("/api/debug", func(r chi.Router) {
			r.Get("/db-health", s.handlers.Debug.DBHealth)
			r.Get("/db-info", s.handlers.Debug.DBInfo)
			r.Get("/db-sample", s.handlers.Debug.DBSample)
			r.Post("/setup-stats-summary", s.handlers.Debug.SetupStatsSummary)
		})
	})
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
