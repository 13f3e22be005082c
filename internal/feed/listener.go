// internal/feed/listener.go
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"edumarket-service/internal/domain/notification"
	"edumarket-service/internal/metrics"
	xerrors "edumarket-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Channel is the postgres NOTIFY channel fed by the notifications trigger
const Channel = "notification_changes"

const (
	minRetryDelay = time.Second
	maxRetryDelay = 30 * time.Second
)

// Payload is the JSON body the trigger publishes
type Payload struct {
	Op     notification.ChangeOp `json:"op"`
	ID     string                `json:"id"`
	UserID string                `json:"user_id"`
}

type Fetcher interface {
	FindByID(ctx context.Context, id string) (*notification.Notification, error)
}

type Invalidator interface {
	InvalidateUnread(ctx context.Context, userID string)
}

type Broadcaster interface {
	BroadcastNotificationChange(op notification.ChangeOp, n *notification.Notification)
}

// Dispatcher turns trigger payloads into broadcast change events
type Dispatcher struct {
	fetcher     Fetcher
	invalidator Invalidator
	sink        Broadcaster
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

func NewDispatcher(fetcher Fetcher, invalidator Invalidator, sink Broadcaster, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		fetcher:     fetcher,
		invalidator: invalidator,
		sink:        sink,
		logger:      logger,
		metrics:     m,
	}
}

// Dispatch handles one NOTIFY payload. Rows deleted before they could be
// fetched are skipped silently.
func (d *Dispatcher) Dispatch(ctx context.Context, raw string) error {
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		d.countError()
		return fmt.Errorf("failed to decode change payload: %w", err)
	}
	if p.Op != notification.ChangeInsert && p.Op != notification.ChangeUpdate {
		d.countError()
		return fmt.Errorf("unsupported change op %q", p.Op)
	}

	if d.invalidator != nil && p.UserID != "" {
		d.invalidator.InvalidateUnread(ctx, p.UserID)
	}

	n, err := d.fetcher.FindByID(ctx, p.ID)
	if errors.Is(err, xerrors.ErrNotFound) {
		d.logger.Debug("changed notification no longer exists", zap.String("id", p.ID))
		return nil
	}
	if err != nil {
		d.countError()
		return fmt.Errorf("failed to load notification %s: %w", p.ID, err)
	}

	if d.metrics != nil {
		d.metrics.FeedEvents.WithLabelValues(string(p.Op)).Inc()
	}
	d.sink.BroadcastNotificationChange(p.Op, n)
	return nil
}

func (d *Dispatcher) countError() {
	if d.metrics != nil {
		d.metrics.FeedErrors.Inc()
	}
}

// Listener holds a dedicated pool connection in LISTEN mode
type Listener struct {
	pool       *pgxpool.Pool
	dispatcher *Dispatcher
	logger     *zap.Logger
}

func NewListener(pool *pgxpool.Pool, dispatcher *Dispatcher, logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		pool:       pool,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Run listens until ctx is cancelled, reconnecting with capped exponential
// backoff when the connection drops
func (l *Listener) Run(ctx context.Context) {
	delay := minRetryDelay
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return
		}

		l.logger.Error("change feed connection lost, retrying",
			zap.Error(err),
			zap.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	pooled, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	// A LISTEN connection never goes back to the pool
	conn := pooled.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{Channel}.Sanitize()); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", Channel, err)
	}

	l.logger.Info("change feed listening", zap.String("channel", Channel))

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if err := l.dispatcher.Dispatch(ctx, n.Payload); err != nil {
			l.logger.Warn("change feed dispatch failed", zap.Error(err), zap.String("payload", n.Payload))
		}
	}
}
