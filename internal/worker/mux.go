package worker

import (
	"context"

	"github.com/hibiken/asynq"

	"orderproof/internal/logger"
)

type Mux struct {
	mux *asynq.ServeMux
	log *logger.Logger
}

func NewMux() *Mux { return &Mux{mux: asynq.NewServeMux(), log: logger.New("Worker")} }

// HandleFunc registers h for task type t and logs every failed run.
func (m *Mux) HandleFunc(t string, h func(ctx context.Context, task *asynq.Task) error) {
	m.mux.HandleFunc(t, func(ctx context.Context, task *asynq.Task) error {
		err := h(ctx, task)
		if err != nil {
			m.log.LogWarnf("Task %s failed: %v", task.Type(), err)
		}
		return err
	})
}

func (m *Mux) Mux() *asynq.ServeMux { return m.mux }
