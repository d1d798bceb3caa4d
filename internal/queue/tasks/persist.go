package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/umlstudio/engine/internal/diagram"
	"github.com/umlstudio/engine/internal/hub"
	"github.com/umlstudio/engine/internal/models"
	"github.com/umlstudio/engine/internal/realtime"
	"github.com/umlstudio/engine/internal/services"
	appErr "github.com/umlstudio/engine/pkg/errors"
	"github.com/umlstudio/engine/pkg/logger"
)

const (
	TypeDiagramPersist = "diagram:persist"
	QueueDiagrams      = "diagrams"
)

// PersistPayload is the task payload for diagram:persist.
type PersistPayload struct {
	RoomID  string            `json:"room_id"`
	Diagram json.RawMessage   `json:"diagram"`
	Author  realtime.UserInfo `json:"author"`
}

// NewPersistTask builds a diagram:persist task for a room snapshot.
func NewPersistTask(roomID string, state diagram.State, author realtime.UserInfo) (*asynq.Task, error) {
	body, err := json.Marshal(state)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInvalid, "encode diagram failed")
	}
	pb, err := json.Marshal(PersistPayload{RoomID: roomID, Diagram: body, Author: author})
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInvalid, "encode persist payload failed")
	}
	return asynq.NewTask(TypeDiagramPersist, pb,
		asynq.Queue(QueueDiagrams),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	), nil
}

// TaskEnqueuer is the part of *asynq.Client the enqueuer needs.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer hands room snapshots to the worker instead of writing them
// from the API process. It satisfies hub.Persister.
type Enqueuer struct {
	client TaskEnqueuer
	log    *zap.Logger
}

func NewEnqueuer(client TaskEnqueuer) *Enqueuer {
	return &Enqueuer{client: client, log: logger.Named("tasks")}
}

func (e *Enqueuer) PersistDiagram(ctx context.Context, roomID string, state diagram.State, author realtime.UserInfo) error {
	task, err := NewPersistTask(roomID, state, author)
	if err != nil {
		return err
	}
	info, err := e.client.EnqueueContext(ctx, task)
	if err != nil {
		e.log.Error("enqueue persist task failed", zap.String("room_id", roomID), zap.Error(err))
		return appErr.Wrap(err, appErr.CodeUnavailable, "enqueue persist task failed")
	}
	e.log.Debug("persist task enqueued", zap.String("room_id", roomID), zap.String("task_id", info.ID))
	return nil
}

// Saver stores a diagram version.
type Saver interface {
	SaveDiagram(ctx context.Context, roomID string, state diagram.State, author realtime.UserInfo) (*models.RoomDiagram, bool, error)
}

// PersistTaskHandler writes queued snapshots through the room service.
type PersistTaskHandler struct {
	saver Saver
}

func NewPersistTaskHandler(saver Saver) *PersistTaskHandler {
	return &PersistTaskHandler{saver: saver}
}

// Register mounts the handler on mux.
func (h *PersistTaskHandler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeDiagramPersist, h.HandlePersist)
}

// HandlePersist saves one snapshot. Malformed payloads are not retried.
func (h *PersistTaskHandler) HandlePersist(ctx context.Context, t *asynq.Task) error {
	var p PersistPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		logger.L().Error("invalid persist task payload", zap.Error(err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if p.RoomID == "" {
		logger.L().Error("persist task without room id")
		return fmt.Errorf("missing room id: %w", asynq.SkipRetry)
	}
	state, _, ok := realtime.DecodeSnapshot(p.Diagram)
	if !ok {
		logger.L().Error("persist task diagram has no classes", zap.String("room_id", p.RoomID))
		return fmt.Errorf("malformed diagram for room %s: %w", p.RoomID, asynq.SkipRetry)
	}

	logger.L().Info("handling persist task", zap.String("room_id", p.RoomID), zap.String("author", p.Author.UserID))
	d, created, err := h.saver.SaveDiagram(ctx, p.RoomID, state, p.Author)
	if err != nil {
		logger.L().Error("persist diagram failed", zap.String("room_id", p.RoomID), zap.Error(err))
		if appErr.IsCode(err, appErr.CodeInvalid) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	logger.L().Info("persist task done", zap.String("room_id", p.RoomID), zap.Int("version", d.Version), zap.Bool("created", created))
	return nil
}

var (
	_ Saver         = (services.RoomService)(nil)
	_ hub.Persister = (*Enqueuer)(nil)
)
