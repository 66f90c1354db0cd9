// Package events carries research tasks over NATS.
package events

import (
	"context"
	"encoding/json"
	"time"

	"hhresearch/common/telemetry"
	"hhresearch/services/research/internal/config"
	"hhresearch/services/research/internal/errors"
	"hhresearch/services/research/internal/tasks"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

var tracer = telemetry.GetTracer("hhresearch/research/events")

const (
	ProgressSubject  = "research.progress"
	CompletedSubject = "research.completed"
	RequestsSubject  = "research.requests"
	requestsQueue    = "research-service"
)

func Connect(logger *zap.Logger, config *config.Config) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(config.ServiceName),
		nats.Timeout(config.NATSConnTimeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("disconnected from NATS", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected to NATS", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	conn, err := nats.Connect(config.NATSURL, opts...)
	if err != nil {
		return nil, errors.Unavailable("connecting to NATS", err)
	}
	logger.Info("connected to NATS", zap.String("url", conn.ConnectedUrl()))
	return conn, nil
}

// Publisher broadcasts task snapshots. It satisfies tasks.Reporter, so
// publish failures are logged rather than returned.
type Publisher struct {
	conn   *nats.Conn
	logger *zap.Logger
}

var _ tasks.Reporter = (*Publisher)(nil)

func NewPublisher(conn *nats.Conn, logger *zap.Logger) *Publisher {
	return &Publisher{conn: conn, logger: logger}
}

func (p *Publisher) Progress(ctx context.Context, snap tasks.Snapshot) {
	if err := p.Publish(ctx, ProgressSubject, snap); err != nil {
		p.logger.Warn("failed to publish progress", zap.String("task_id", snap.ID), zap.Error(err))
	}
}

func (p *Publisher) Completed(ctx context.Context, snap tasks.Snapshot) {
	if err := p.Publish(ctx, CompletedSubject, snap); err != nil {
		p.logger.Error("failed to publish completion", zap.String("task_id", snap.ID), zap.Error(err))
	}
}

func (p *Publisher) Publish(ctx context.Context, subject string, snap tasks.Snapshot) error {
	_, span := tracer.Start(ctx, "Publisher.Publish")
	defer span.End()

	data, err := json.Marshal(snap)
	if err != nil {
		span.RecordError(err)
		return errors.Internal("marshaling task snapshot", err)
	}

	span.SetAttributes(
		telemetry.String("nats.subject", subject),
		telemetry.String("task.id", snap.ID),
		telemetry.Int("message.size", len(data)),
	)

	if err := p.conn.Publish(subject, data); err != nil {
		span.RecordError(err)
		return errors.Unavailable("publishing to NATS", err)
	}

	p.logger.Debug("published task snapshot",
		zap.String("subject", subject),
		zap.String("task_id", snap.ID),
		zap.String("status", string(snap.Status)))
	return nil
}
