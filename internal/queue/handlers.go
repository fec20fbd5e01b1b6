package queue

import (
	"log/slog"

	"github.com/hibiken/asynq"
)

// Registry collects task handlers before the worker starts serving.
type Registry struct {
	mux *asynq.ServeMux
}

func NewRegistry() *Registry {
	return &Registry{mux: asynq.NewServeMux()}
}

func (r *Registry) Register(taskType string, handler asynq.Handler) {
	r.mux.Handle(taskType, handler)
	slog.Info("task handler registered", "task_type", taskType)
}

func (r *Registry) Mux() *asynq.ServeMux {
	return r.mux
}
