package coordinator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/letterdesk/go-newsletter-cache/model"
	"github.com/letterdesk/go-newsletter-cache/repository"
)

// Priority controls cache-warming scheduling delay. It never affects
// correctness; a skipped or failed warm is not observable as an error.
type Priority int

const (
	PriorityHigh Priority = iota
	PriorityMedium
	PriorityLow
)

var warmDelays = map[Priority]time.Duration{
	PriorityHigh:   0,
	PriorityMedium: 150 * time.Millisecond,
	PriorityLow:    400 * time.Millisecond,
}

// warmDetailLimit bounds how many queue-head newsletter details one warm
// pass prefetches.
const warmDetailLimit = 5

// Warmer prefetches high-value partitions: the reading queue and the
// newsletter details at its head, which are what the user opens first.
type Warmer struct {
	coord       *Coordinator
	newsletters repository.Newsletters
	queue       repository.ReadingQueue
	logger      *zap.Logger
}

// NewWarmer creates a cache warmer over the given repositories.
func NewWarmer(coord *Coordinator, newsletters repository.Newsletters, queue repository.ReadingQueue, logger *zap.Logger) *Warmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Warmer{coord: coord, newsletters: newsletters, queue: queue, logger: logger}
}

// Warm schedules a best-effort prefetch for a user. It returns immediately;
// the work happens in the background after the priority's delay. Failures
// are logged and never surface.
func (w *Warmer) Warm(ctx context.Context, userID string, priority Priority) {
	delay := warmDelays[priority]
	ctx = context.WithoutCancel(ctx)

	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		w.warm(ctx, userID)
	}()
}

// WarmSync runs one warm pass inline. Exposed for deterministic tests and
// for callers that want warm-on-login to finish before first paint.
func (w *Warmer) WarmSync(ctx context.Context, userID string) {
	w.warm(ctx, userID)
}

func (w *Warmer) warm(ctx context.Context, userID string) {
	items, err := w.queue.List(ctx, userID)
	if err != nil {
		w.logger.Debug("cache warm skipped: queue fetch failed",
			zap.String("user_id", userID), zap.Error(err))
		return
	}

	w.coord.SetQueue(ctx, userID, items)

	warmed := 0
	for _, item := range items {
		if warmed >= warmDetailLimit {
			break
		}
		warmed++
		w.warmDetail(ctx, item)
	}

	w.logger.Debug("cache warmed",
		zap.String("user_id", userID),
		zap.Int("queue_items", len(items)),
		zap.Int("details", warmed))
}

func (w *Warmer) warmDetail(ctx context.Context, item model.ReadingQueueItem) {
	if _, ok := w.coord.Newsletter(ctx, item.NewsletterID); ok {
		return
	}
	n, err := w.newsletters.GetByID(ctx, item.NewsletterID)
	if err != nil {
		w.logger.Debug("cache warm: newsletter fetch failed",
			zap.String("newsletter_id", item.NewsletterID), zap.Error(err))
		return
	}
	w.coord.SetNewsletter(ctx, n)
}
