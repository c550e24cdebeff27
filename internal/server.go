package internal

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"stage-inventory-api/internal/auth"
	"stage-inventory-api/internal/config"
	"stage-inventory-api/internal/handlers"
	"stage-inventory-api/internal/inventory"
	"stage-inventory-api/internal/models"
	"stage-inventory-api/internal/reservation"
	"stage-inventory-api/pkg/importer"
)

// Deps are the collaborators a Server routes to
type Deps struct {
	Inventory    *inventory.Service
	Reservations *reservation.Service
	Mapping      *importer.MappingConfig
	Metrics      *Metrics
	Logger       *zap.Logger
	// Ping checks the backing store for /health; nil skips the check
	Ping func(ctx context.Context) error
}

type Server struct {
	Router       *chi.Mux
	JWTManager   *auth.JWTManager
	Metrics      *Metrics
	Logger       *zap.Logger
	Inventory    *inventory.Service
	Reservations *reservation.Service
	Imports      *handlers.ImportsHandler

	location *time.Location
	now      func() time.Time
	validate *validator.Validate
	ping     func(ctx context.Context) error
}

func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.Inventory == nil || deps.Reservations == nil {
		return nil, errors.New("server: inventory and reservation services are required")
	}

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTExpiry)
	if err := jwtManager.ValidateConfig(); err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	s := &Server{
		Router:       chi.NewRouter(),
		JWTManager:   jwtManager,
		Metrics:      metrics,
		Logger:       logger,
		Inventory:    deps.Inventory,
		Reservations: deps.Reservations,
		Imports:      handlers.NewImportsHandler(deps.Inventory, deps.Mapping, logger.Named("import")),
		location:     cfg.Location(),
		validate:     validator.New(),
		ping:         deps.Ping,
	}
	s.now = nowIn(s.location)

	s.Router.Use(middleware.RequestID)
	s.Router.Use(middleware.RealIP)
	s.Router.Use(requestLogger(logger.Named("http")))
	s.Router.Use(middleware.Recoverer)
	if cfg.EnableMetrics {
		s.Router.Use(s.Metrics.Middleware())
	}

	// Mount public routes FIRST
	s.Router.Get("/health", s.health)
	if cfg.EnableMetrics {
		s.Router.Get("/metrics", s.Metrics.Handler().ServeHTTP)
	}

	s.Router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(s.JWTManager))
		s.mountProtectedRoutes(r)
	})

	return s, nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ping(ctx); err != nil {
			s.Logger.Warn("health check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "store unavailable", "STORE_UNAVAILABLE")
			return
		}
	}
	if _, err := w.Write([]byte("ok")); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// mountProtectedRoutes mounts all protected routes that require authentication
func (s *Server) mountProtectedRoutes(r chi.Router) {
	staff := auth.MustRole(models.RoleAdmin, models.RoleLogistics)
	admin := auth.MustRole(models.RoleAdmin)

	r.Route("/equipment", func(r chi.Router) {
		r.Get("/", s.listEquipment)
		r.With(staff).Post("/", s.createEquipment)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getEquipment)
			r.With(staff).Put("/", s.updateEquipment)
			r.With(admin).Delete("/", s.deleteEquipment)
			r.With(staff).Put("/location", s.relocateEquipment)
			r.With(staff).Put("/out-of-service", s.setOutOfService)
			r.Get("/state", s.getServiceState)
			r.Get("/history", s.listHistory)
		})
	})

	r.Route("/events", func(r chi.Router) {
		r.With(staff).Post("/", s.createEvent)
		r.Get("/{id}", s.getEvent)
		r.With(staff).Put("/{id}", s.updateEvent)
		r.With(staff).Delete("/{id}", s.deleteEvent)
	})

	r.With(staff).Post("/imports/equipment", s.Imports.UploadExcel)
}
