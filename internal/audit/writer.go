package audit

import (
	"context"
	"errors"
	"time"

	"github.com/bloodbank/bloodbank-backend/pkg/logger"
	"github.com/bloodbank/bloodbank-backend/pkg/metrics"
)

const (
	defaultQueueSize    = 1024
	defaultWriteTimeout = 3 * time.Second
	defaultFlushTimeout = 5 * time.Second
)

type WriterParams struct {
	Repository   Repository
	Logger       *logger.Logger
	Metrics      *metrics.BankMetrics
	QueueSize    int
	WriteTimeout time.Duration
	FlushTimeout time.Duration
}

// Writer is a write-behind Recorder. Record only enqueues; Run persists.
type Writer struct {
	repo         Repository
	logg         *logger.Logger
	metrics      *metrics.BankMetrics
	queue        chan Entry
	writeTimeout time.Duration
	flushTimeout time.Duration
}

func NewWriter(params WriterParams) (*Writer, error) {
	if params.Repository == nil {
		return nil, errors.New("audit repository is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	size := params.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	writeTimeout := params.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	flushTimeout := params.FlushTimeout
	if flushTimeout <= 0 {
		flushTimeout = defaultFlushTimeout
	}
	return &Writer{
		repo:         params.Repository,
		logg:         params.Logger,
		metrics:      params.Metrics,
		queue:        make(chan Entry, size),
		writeTimeout: writeTimeout,
		flushTimeout: flushTimeout,
	}, nil
}

// Record enqueues entry. When the queue is full the entry is dropped.
func (w *Writer) Record(ctx context.Context, entry Entry) {
	select {
	case w.queue <- entry:
	default:
		w.metrics.IncAuditDropped()
		w.logg.Warn(w.logg.WithField(ctx, "audit_action", string(entry.Action)), "audit queue full, entry dropped")
	}
}

// Pending reports how many entries are waiting to be written.
func (w *Writer) Pending() int {
	return len(w.queue)
}

// Run persists queued entries until ctx is cancelled, then flushes what is
// left within the flush timeout.
func (w *Writer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.flush()
			return nil
		case entry := <-w.queue:
			w.write(context.WithoutCancel(ctx), entry)
		}
	}
}

func (w *Writer) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), w.flushTimeout)
	defer cancel()

	for {
		select {
		case entry := <-w.queue:
			w.write(ctx, entry)
		default:
			return
		}
		if ctx.Err() != nil {
			if remaining := len(w.queue); remaining > 0 {
				w.logg.Warn(w.logg.WithField(context.Background(), "remaining", remaining), "audit flush timed out")
			}
			return
		}
	}
}

func (w *Writer) write(ctx context.Context, entry Entry) {
	writeCtx, cancel := context.WithTimeout(ctx, w.writeTimeout)
	defer cancel()

	if err := w.repo.Create(writeCtx, entry); err != nil {
		w.metrics.IncAuditFailed()
		w.logg.Error(w.logg.WithField(ctx, "audit_action", string(entry.Action)), "audit write failed", err)
	}
}
