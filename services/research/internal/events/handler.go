package events

import (
	"context"
	"encoding/json"
	"fmt"

	"hhresearch/common/telemetry"
	"hhresearch/services/research/internal/models"

	"github.com/nats-io/nats.go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Starter interface {
	Start(settings models.Settings) (string, error)
}

// Reply is the response to a request on RequestsSubject.
type Reply struct {
	TaskID string `json:"task_id,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Handler turns research requests into background tasks. A request body
// is a partial settings document merged over the configured defaults.
type Handler struct {
	logger   *zap.Logger
	conn     *nats.Conn
	starter  Starter
	defaults models.Settings
	sub      *nats.Subscription
}

func NewHandler(logger *zap.Logger, conn *nats.Conn, starter Starter, defaults models.Settings) *Handler {
	return &Handler{
		logger:   logger,
		conn:     conn,
		starter:  starter,
		defaults: defaults,
	}
}

func (h *Handler) RegisterSubscriptions(lc fx.Lifecycle) error {
	sub, err := h.conn.QueueSubscribe(RequestsSubject, requestsQueue, h.handleRequest)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", RequestsSubject, err)
	}

	h.sub = sub
	h.logger.Info("registered NATS subscriptions", zap.String("subject", RequestsSubject))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return h.sub.Drain()
		},
	})
	return nil
}

func (h *Handler) handleRequest(msg *nats.Msg) {
	_, span := tracer.Start(context.Background(), "Handler.handleRequest")
	defer span.End()
	span.SetAttributes(telemetry.String("nats.subject", msg.Subject))

	reply := h.process(msg.Data)
	if reply.Error != "" {
		h.logger.Warn("rejected research request", zap.String("error", reply.Error))
	} else {
		span.SetAttributes(telemetry.String("task.id", reply.TaskID))
	}

	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		h.logger.Error("failed to marshal reply", zap.Error(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		span.RecordError(err)
		h.logger.Error("failed to reply to research request", zap.Error(err))
	}
}

func (h *Handler) process(data []byte) Reply {
	var patch models.SettingsPatch
	if err := json.Unmarshal(data, &patch); err != nil {
		return Reply{Error: fmt.Sprintf("invalid request body: %v", err)}
	}

	id, err := h.starter.Start(patch.Apply(h.defaults))
	if err != nil {
		return Reply{Error: err.Error()}
	}
	return Reply{TaskID: id}
}
