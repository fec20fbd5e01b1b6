package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/invoiceflow/invoiceflow/internal/audit"
	"github.com/invoiceflow/invoiceflow/internal/config"
	"github.com/invoiceflow/invoiceflow/internal/database"
	"github.com/invoiceflow/invoiceflow/internal/extraction"
	"github.com/invoiceflow/invoiceflow/internal/lifecycle"
	"github.com/invoiceflow/invoiceflow/internal/llm"
	"github.com/invoiceflow/invoiceflow/internal/queue"
	"github.com/invoiceflow/invoiceflow/internal/queue/workers"
	"github.com/invoiceflow/invoiceflow/internal/storage"
	"github.com/invoiceflow/invoiceflow/internal/store"
	"github.com/invoiceflow/invoiceflow/internal/webhook"
	"github.com/invoiceflow/invoiceflow/internal/workflow"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	objects := storage.NewSupabaseStorage(cfg.Storage.SupabaseURL, cfg.Storage.SupabaseKey, cfg.Storage.Bucket)
	docs := store.NewDocumentStore(db)
	workflowStore := store.NewWorkflowStore(db)
	lm := lifecycle.NewManager(docs)
	auditSvc := audit.NewService(db)
	tasks := queue.NewClient(cfg.Redis)
	defer tasks.Close()

	registry := workflow.NewRegistry(workflow.InvoiceApproval())
	engine := workflow.NewEngine(registry, workflowStore, docs, lm, auditSvc)

	gateway := llm.NewGateway(cfg.LLM)
	extractor := extraction.NewInvoiceExtractor(objects, gateway, cfg.LLM.ExtractionModel)

	webhookSvc := webhook.NewService(db, tasks)
	dispatcher := webhook.NewDispatcher(db)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	handlers := queue.NewRegistry()

	extractWorker := workers.NewExtractWorker(lm, extractor, engine, webhookSvc)
	webhookWorker := workers.NewWebhookWorker(webhookSvc, dispatcher)

	handlers.Register(queue.TypeDocumentExtract, asynq.HandlerFunc(extractWorker.ProcessTask))
	handlers.Register(queue.TypeWebhookDeliver, asynq.HandlerFunc(webhookWorker.ProcessTask))

	slog.Info("starting worker", "concurrency", 10)
	if err := srv.Run(handlers.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
