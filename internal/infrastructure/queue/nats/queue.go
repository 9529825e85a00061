package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
	"github.com/kirillkom/invoice-ingest/internal/infrastructure/resilience"
)

const queueGroup = "workers"

// Queue publishes job tickets to a subject and consumes them through a queue group.
type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("invoice-ingest"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// Dispatch publishes the ticket. Connection level failures are reported as domain.ErrTemporary.
func (q *Queue) Dispatch(ctx context.Context, ticket domain.JobTicket) error {
	payload, err := encodeTicket(ticket)
	if err != nil {
		return err
	}

	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyPublishError)
	} else {
		err = call(ctx)
	}
	return dispatchError(ticket.JobID, err)
}

// classifyPublishError decides whether a ticket publish is worth another attempt. Connection
// trouble is retried and counts against the breaker; a ticket the server refuses is neither.
func classifyPublishError(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return resilience.ErrorClassification{}
	case errors.Is(err, nats.ErrMaxPayload):
		return resilience.ErrorClassification{}
	case errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrConnectionDraining),
		errors.Is(err, nats.ErrDisconnected),
		errors.Is(err, nats.ErrReconnectBufExceeded):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

// dispatchError tags publish failures a later submission could survive as domain.ErrTemporary.
func dispatchError(jobID string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if resilience.IsCircuitOpen(err) || classifyPublishError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, "dispatch job "+jobID, err)
	}
	return fmt.Errorf("dispatch job %s: %w", jobID, err)
}

// Subscribe consumes tickets until ctx is done, then drains the subscription.
// Handler errors are logged; core NATS gives no redelivery.
func (q *Queue) Subscribe(ctx context.Context, handler func(context.Context, domain.JobTicket) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, queueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		ticket, err := decodeTicket(msg.Data)
		if err != nil {
			q.logger.Error("job_ticket_decode_failed", "error", err, "payload_bytes", len(msg.Data))
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, ticket); err != nil {
			q.logger.Error("worker_handler_error", "job_id", ticket.JobID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func encodeTicket(ticket domain.JobTicket) ([]byte, error) {
	if ticket.JobID == "" || ticket.OwnerID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode job ticket", errors.New("job id and owner id are required"))
	}
	payload, err := json.Marshal(ticket)
	if err != nil {
		return nil, fmt.Errorf("marshal job ticket: %w", err)
	}
	return payload, nil
}

func decodeTicket(data []byte) (domain.JobTicket, error) {
	var ticket domain.JobTicket
	if err := json.Unmarshal(data, &ticket); err != nil {
		return domain.JobTicket{}, fmt.Errorf("unmarshal job ticket: %w", err)
	}
	if ticket.JobID == "" || ticket.OwnerID == "" {
		return domain.JobTicket{}, fmt.Errorf("job ticket without job or owner id")
	}
	return ticket, nil
}
