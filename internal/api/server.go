package api

import (
	"net/http"

	"github.com/wheelhouse-index/wheelhouse/internal/api/middleware"
	"github.com/wheelhouse-index/wheelhouse/internal/audit"
	"github.com/wheelhouse-index/wheelhouse/internal/core"
	"github.com/wheelhouse-index/wheelhouse/internal/publishers"
	"github.com/wheelhouse-index/wheelhouse/internal/service"
	"github.com/wheelhouse-index/wheelhouse/internal/tasks"
)

type Server struct {
	mintService     *service.MintService
	registry        *publishers.Registry
	taskManager     *tasks.Manager
	auditor         core.Auditor
	credentialStore core.CredentialStore
	metricsHandler  http.Handler
}

func NewServer(
	mintService *service.MintService,
	registry *publishers.Registry,
	taskManager *tasks.Manager,
	auditor core.Auditor,
	credentialStore core.CredentialStore,
	metricsHandler http.Handler,
) *Server {
	if auditor == nil {
		auditor = audit.NewNoopAuditor()
	}

	return &Server{
		mintService:     mintService,
		registry:        registry,
		taskManager:     taskManager,
		auditor:         auditor,
		credentialStore: credentialStore,
		metricsHandler:  metricsHandler,
	}
}

func (s *Server) Routes(adminKey string) http.Handler {
	mux := http.NewServeMux()

	// public routes
	mux.HandleFunc("GET "+HealthCheckRoute, s.handleHealth)
	mux.HandleFunc("GET "+AboutRoute, s.handleAbout)
	mux.HandleFunc("GET "+AudienceRoute, s.handleAudience)

	// token exchange route
	mux.HandleFunc("POST "+MintTokenRoute, s.handleMint)

	if s.metricsHandler != nil {
		mux.Handle("GET "+MetricsRoute, s.metricsHandler)
	}

	// admin routes
	adminMux := http.NewServeMux()
	adminMux.HandleFunc("GET "+ListAuditsRoute, s.handleAdminAudit)
	adminMux.HandleFunc("GET "+ListCredentialsRoute, s.handleAdminCredentials)
	adminMux.HandleFunc("GET "+ListIssuersRoute, s.handleAdminIssuers)
	adminMux.HandleFunc("POST "+ToggleIssuerKindRoute, s.handleToggleIssuerKind)
	adminMux.HandleFunc("GET "+ListTasksRoute, s.handleListTasks)
	adminMux.HandleFunc("POST "+TriggerTaskRoute, s.handleTriggerTask)
	adminMux.HandleFunc("GET "+LogsForTaskRoute, s.handleLogsForTask)
	adminHandler := middleware.AdminAuth(adminKey)(adminMux)
	mux.Handle(AdminParent, adminHandler)
	mux.Handle(TaskParent, adminHandler)

	return middleware.RecoverMiddleware(
		middleware.CorrelationIDMiddleware(
			middleware.LoggingMiddleware(
				mux)))
}
