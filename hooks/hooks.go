package hooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/INLOpen/flatindex/core"
)

// EventType defines the type of a hook event.
type EventType string

const (
	EventPreBuild  EventType = "PreBuild"
	EventPostBuild EventType = "PostBuild"

	EventPreSearch  EventType = "PreSearch"
	EventPostSearch EventType = "PostSearch"

	EventPostList   EventType = "PostList"
	EventPostVerify EventType = "PostVerify"
)

// HookManager defines the interface for managing and triggering hooks.
type HookManager interface {
	// Register adds a listener for a specific event type.
	Register(eventType EventType, listener HookListener)
	// Trigger fires all registered listeners for a given event. Pre events
	// run synchronously and an error cancels the operation.
	Trigger(ctx context.Context, event HookEvent) error
	// Stop waits for all asynchronous listeners to complete.
	Stop()
}

// HookEvent is the interface that all event objects must implement.
type HookEvent interface {
	Type() EventType
	Payload() interface{}
}

// BaseEvent provides a base implementation for HookEvent.
type BaseEvent struct {
	eventType EventType
	payload   interface{}
}

func (e *BaseEvent) Type() EventType      { return e.eventType }
func (e *BaseEvent) Payload() interface{} { return e.payload }

// PreBuildPayload is sent before an index build starts. Strategy points at
// the strategy the build will use, so a listener can change it.
type PreBuildPayload struct {
	DataPath  string
	IndexPath string
	KeyLength int
	Strategy  *core.BuildStrategy
}

func NewPreBuildEvent(payload PreBuildPayload) HookEvent {
	return &BaseEvent{eventType: EventPreBuild, payload: payload}
}

type PostBuildPayload struct {
	DataPath  string
	IndexPath string
	KeyLength int
	Result    core.BuildResult
	Error     error
}

func NewPostBuildEvent(payload PostBuildPayload) HookEvent {
	return &BaseEvent{eventType: EventPostBuild, payload: payload}
}

// PreSearchPayload is sent before a lookup. Key points at the key to be
// searched, so a listener can rewrite it.
type PreSearchPayload struct {
	IndexPath string
	Key       *[]byte
}

func NewPreSearchEvent(payload PreSearchPayload) HookEvent {
	return &BaseEvent{eventType: EventPreSearch, payload: payload}
}

type PostSearchPayload struct {
	IndexPath string
	Key       []byte
	Found     bool
	Matches   int
	Duration  time.Duration
	Error     error
}

func NewPostSearchEvent(payload PostSearchPayload) HookEvent {
	return &BaseEvent{eventType: EventPostSearch, payload: payload}
}

type PostListPayload struct {
	IndexPath string
	Records   int64
	Duration  time.Duration
	Error     error
}

func NewPostListEvent(payload PostListPayload) HookEvent {
	return &BaseEvent{eventType: EventPostList, payload: payload}
}

type PostVerifyPayload struct {
	IndexPath string
	Entries   int64
	Problems  int
	Error     error
}

func NewPostVerifyEvent(payload PostVerifyPayload) HookEvent {
	return &BaseEvent{eventType: EventPostVerify, payload: payload}
}

// HookListener defines the interface for components that want to listen to events.
type HookListener interface {
	// OnEvent is called by the HookManager when a registered event is triggered.
	// Returning an error from a Pre hook cancels the operation. Errors from
	// Post hooks are logged.
	OnEvent(ctx context.Context, event HookEvent) error

	// Priority returns the listener's priority. Lower numbers are executed first.
	Priority() int

	// IsAsync indicates if the listener should be called asynchronously for Post events.
	IsAsync() bool
}

type listenerWithPriority struct {
	listener HookListener
	priority int
}

// DefaultHookManager keeps listeners per event type sorted by priority.
type DefaultHookManager struct {
	listeners map[EventType][]*listenerWithPriority
	mu        sync.RWMutex
	wg        sync.WaitGroup // async listeners
	logger    *slog.Logger
}

func NewHookManager(logger *slog.Logger) HookManager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DefaultHookManager{
		listeners: make(map[EventType][]*listenerWithPriority),
		logger:    logger.With("component", "HookManager"),
	}
}

// Register adds a listener for a specific event type, maintaining priority order.
// Listeners with equal priority run in registration order.
func (m *DefaultHookManager) Register(eventType EventType, listener HookListener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := &listenerWithPriority{listener: listener, priority: listener.Priority()}
	l := m.listeners[eventType]
	idx := sort.Search(len(l), func(i int) bool {
		return l[i].priority > item.priority
	})
	l = append(l, nil)
	copy(l[idx+1:], l[idx:])
	l[idx] = item
	m.listeners[eventType] = l
}

// Trigger fires all registered listeners for a given event in priority order.
func (m *DefaultHookManager) Trigger(ctx context.Context, event HookEvent) error {
	m.mu.RLock()
	listeners := m.listeners[event.Type()]
	m.mu.RUnlock()
	if len(listeners) == 0 {
		return nil
	}

	isPreHook := strings.HasPrefix(string(event.Type()), "Pre")
	for _, item := range listeners {
		if isPreHook || !item.listener.IsAsync() {
			if isPreHook && item.listener.IsAsync() {
				m.logger.Warn("Listener for Pre-hook requested async execution, but Pre-hooks are always synchronous.", "event", event.Type(), "priority", item.priority)
			}
			if err := item.listener.OnEvent(ctx, event); err != nil {
				if isPreHook {
					return fmt.Errorf("pre-hook for event %s (priority %d) failed: %w", event.Type(), item.priority, err)
				}
				m.logger.Error("Error from synchronous post-hook listener", "event", event.Type(), "priority", item.priority, "error", err)
			}
			continue
		}

		m.wg.Add(1)
		go func(current *listenerWithPriority) {
			defer m.wg.Done()
			if err := current.listener.OnEvent(ctx, event); err != nil {
				m.logger.Error("Error from asynchronous post-hook listener", "event", event.Type(), "priority", current.priority, "error", err)
			}
		}(item)
	}
	return nil
}

func (m *DefaultHookManager) Stop() {
	m.wg.Wait()
}
