package interceptors

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/phase"
)

// DuplicateDetector defines the interface for duplicate detection
type DuplicateDetector interface {
	IsDuplicate(ctx context.Context, messageID string) (bool, error)
	MarkProcessed(ctx context.Context, messageID string) error
}

// MemoryDuplicateDetector remembers processed message ids for a time window
type MemoryDuplicateDetector struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewMemoryDuplicateDetector creates a detector that forgets ids after ttl
func NewMemoryDuplicateDetector(ttl time.Duration) *MemoryDuplicateDetector {
	return &MemoryDuplicateDetector{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// IsDuplicate implements DuplicateDetector
func (d *MemoryDuplicateDetector) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	at, ok := d.seen[messageID]
	if !ok {
		return false, nil
	}
	if d.now().Sub(at) > d.ttl {
		delete(d.seen, messageID)
		return false, nil
	}
	return true, nil
}

// MarkProcessed implements DuplicateDetector
func (d *MemoryDuplicateDetector) MarkProcessed(ctx context.Context, messageID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.seen[messageID] = now
	for id, at := range d.seen {
		if now.Sub(at) > d.ttl {
			delete(d.seen, id)
		}
	}
	return nil
}

// Len returns the number of remembered ids
func (d *MemoryDuplicateDetector) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// DuplicateDetectionInterceptor drops redelivered messages. A duplicate aborts
// the chain and completes the exchange without a response; a message is only
// remembered once its exchange completes without a fault.
type DuplicateDetectionInterceptor struct {
	Base
	detector DuplicateDetector
	logger   *slog.Logger
}

// NewDuplicateDetectionInterceptor creates a new duplicate detection interceptor
func NewDuplicateDetectionInterceptor(detector DuplicateDetector, logger *slog.Logger, opts ...Option) *DuplicateDetectionInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return &DuplicateDetectionInterceptor{
		Base:     newBase("DuplicateDetectionInterceptor", phase.PostProtocol, opts),
		detector: detector,
		logger:   logger,
	}
}

// HandleMessage implements Interceptor
func (i *DuplicateDetectionInterceptor) HandleMessage(ctx context.Context, msg *contracts.Message) error {
	duplicate, err := i.detector.IsDuplicate(ctx, msg.ID)
	if err != nil {
		return err
	}

	ex := msg.Exchange()
	if duplicate {
		i.logger.Info("duplicate message dropped", "messageId", msg.ID)
		if chain, ok := ChainFromContext(ctx); ok {
			chain.Abort()
		}
		if ex != nil {
			ex.Complete()
		}
		return nil
	}

	if ex != nil {
		markCtx := context.WithoutCancel(ctx)
		ex.OnComplete(func() {
			if ex.Failed() {
				return
			}
			if err := i.detector.MarkProcessed(markCtx, msg.ID); err != nil {
				i.logger.Warn("failed to mark message processed", "messageId", msg.ID, "error", err)
			}
		})
	}
	return nil
}
