package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/invoiceflow/invoiceflow/internal/api/handlers"
	"github.com/invoiceflow/invoiceflow/internal/api/middleware"
	"github.com/invoiceflow/invoiceflow/internal/audit"
	"github.com/invoiceflow/invoiceflow/internal/auth"
	"github.com/invoiceflow/invoiceflow/internal/config"
	"github.com/invoiceflow/invoiceflow/internal/lifecycle"
	"github.com/invoiceflow/invoiceflow/internal/queue"
	"github.com/invoiceflow/invoiceflow/internal/reaper"
	"github.com/invoiceflow/invoiceflow/internal/storage"
	"github.com/invoiceflow/invoiceflow/internal/store"
	"github.com/invoiceflow/invoiceflow/internal/webhook"
	"github.com/invoiceflow/invoiceflow/internal/workflow"
)

type Router struct {
	mux    *chi.Mux
	db     *pgxpool.Pool
	redis  *redis.Client
	cfg    *config.Config
	jwt    *auth.JWTMiddleware
	apikey *auth.APIKeyMiddleware
}

func NewRouter(db *pgxpool.Pool, rdb *redis.Client, cfg *config.Config) *Router {
	return &Router{
		mux:    chi.NewRouter(),
		db:     db,
		redis:  rdb,
		cfg:    cfg,
		jwt:    auth.NewJWTMiddleware(cfg.Auth.JWTSecret),
		apikey: auth.NewAPIKeyMiddleware(cfg.Auth.APIKeyHeader, cfg.Auth.APIKeys),
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	rl := middleware.NewRateLimiter(100, 200)
	r.Use(rl.Limit)

	// Health endpoints (no auth)
	health := handlers.NewHealthHandler(rt.db, rt.redis)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	// Initialize services
	objects := storage.NewSupabaseStorage(rt.cfg.Storage.SupabaseURL, rt.cfg.Storage.SupabaseKey, rt.cfg.Storage.Bucket)
	docs := store.NewDocumentStore(rt.db)
	workflows := store.NewWorkflowStore(rt.db)
	lm := lifecycle.NewManager(docs)
	auditSvc := audit.NewService(rt.db)
	tasks := queue.NewClient(rt.cfg.Redis)
	webhookSvc := webhook.NewService(rt.db, tasks)

	registry := workflow.NewRegistry(workflow.InvoiceApproval())
	engine := workflow.NewEngine(registry, workflows, docs, lm, auditSvc)
	sweeper := reaper.New(docs, workflows, objects)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Auth: try API key first, then JWT
		r.Use(rt.apikey.Authenticate)
		r.Use(rt.jwt.Authenticate)

		uploadH := handlers.NewUploadHandler(objects)
		r.Post("/uploads", uploadH.RequestURL)

		docH := handlers.NewDocumentHandler(lm, engine, docs, workflows, objects, tasks, auditSvc, rt.cfg.Documents.RetentionWindow)
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", docH.Create)
			r.Get("/", docH.List)
			r.Get("/{id}", docH.Get)
			r.Get("/{id}/status", docH.Status)
			r.Delete("/{id}", docH.Delete)
		})

		workflowH := handlers.NewWorkflowHandler(engine)
		r.Route("/workflows", func(r chi.Router) {
			r.Post("/", workflowH.Start)
			r.Get("/{id}", workflowH.Get)
			r.Post("/{id}/advance", workflowH.Advance)
			r.Post("/{id}/decision", workflowH.Decide)
		})

		webhookH := handlers.NewWebhookHandler(webhookSvc)
		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/", webhookH.Create)
			r.Get("/", webhookH.List)
			r.Delete("/{id}", webhookH.Delete)
		})

		adminH := handlers.NewAdminHandler(auditSvc, sweeper)
		r.Route("/admin", func(r chi.Router) {
			r.Get("/audit", adminH.AuditLogs)
			r.Post("/sweep", adminH.Sweep)
		})
	})

	return r
}
