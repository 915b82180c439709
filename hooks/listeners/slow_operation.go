package listeners

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/INLOpen/flatindex/hooks"
)

// SlowOperationListener logs searches and listings that take longer than a
// threshold.
type SlowOperationListener struct {
	logger          *slog.Logger
	searchThreshold time.Duration
	listThreshold   time.Duration
}

// NewSlowOperationListener creates the listener. A zero threshold disables
// the check for that operation.
func NewSlowOperationListener(logger *slog.Logger, searchThreshold, listThreshold time.Duration) *SlowOperationListener {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SlowOperationListener{
		logger:          logger.With("component", "SlowOperationListener"),
		searchThreshold: searchThreshold,
		listThreshold:   listThreshold,
	}
}

// Register subscribes the listener to the events it understands.
func (l *SlowOperationListener) Register(m hooks.HookManager) {
	m.Register(hooks.EventPostSearch, l)
	m.Register(hooks.EventPostList, l)
}

func (l *SlowOperationListener) OnEvent(ctx context.Context, event hooks.HookEvent) error {
	switch p := event.Payload().(type) {
	case hooks.PostSearchPayload:
		if l.searchThreshold > 0 && p.Duration > l.searchThreshold {
			l.logger.Warn("Slow search",
				"index", p.IndexPath,
				"key", string(p.Key),
				"found", p.Found,
				"duration", p.Duration,
				"threshold", l.searchThreshold,
			)
		}
	case hooks.PostListPayload:
		if l.listThreshold > 0 && p.Duration > l.listThreshold {
			l.logger.Warn("Slow listing",
				"index", p.IndexPath,
				"records", p.Records,
				"duration", p.Duration,
				"threshold", l.listThreshold,
			)
		}
	default:
		l.logger.Error("Received event with unexpected payload type", "event", event.Type(), "payload_type", fmt.Sprintf("%T", event.Payload()))
	}
	return nil
}

func (l *SlowOperationListener) Priority() int { return 100 }

// IsAsync is false so warnings are written before the command exits.
func (l *SlowOperationListener) IsAsync() bool { return false }
