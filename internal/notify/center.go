// Package notify holds transient UI state: the single visible notification,
// the single open modal, and per-container loading indicators. State changes
// are fanned out to connected clients as events.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Severity classifies a notification.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Normalize maps unknown severities to info.
func (s Severity) Normalize() Severity {
	switch s {
	case SeveritySuccess, SeverityError, SeverityWarning, SeverityInfo:
		return s
	default:
		return SeverityInfo
	}
}

// Notification is one transient message.
type Notification struct {
	ID       string   `json:"id"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Modal is the single open dialog.
type Modal struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Event is a state-change notification pushed to clients.
type Event struct {
	Kind         string        `json:"kind"`
	Notification *Notification `json:"notification,omitempty"`
	Modal        *Modal        `json:"modal,omitempty"`
	Container    string        `json:"container,omitempty"`
	Message      string        `json:"message,omitempty"`
}

// Event kinds.
const (
	EventNotification        = "notification"
	EventNotificationCleared = "notification_cleared"
	EventModalOpened         = "modal_opened"
	EventModalClosed         = "modal_closed"
	EventLoading             = "loading"
	EventLoadingCleared      = "loading_cleared"
)

// Broadcaster fans an event out to connected clients.
type Broadcaster interface {
	Broadcast(Event)
}

// DefaultTTL is how long a notification stays visible before auto-dismissal.
const DefaultTTL = 5 * time.Second

// Center tracks the transient UI state. At most one notification and one
// modal exist at a time.
type Center struct {
	logger *zap.Logger
	hub    Broadcaster
	ttl    time.Duration

	mu      sync.Mutex
	current *Notification
	timer   *time.Timer
	modal   *Modal
	loading map[string]string
}

// Option configures a Center.
type Option func(*Center)

// WithTTL overrides the auto-dismiss interval.
func WithTTL(ttl time.Duration) Option {
	return func(c *Center) { c.ttl = ttl }
}

// WithBroadcaster attaches an event sink.
func WithBroadcaster(hub Broadcaster) Option {
	return func(c *Center) { c.hub = hub }
}

// NewCenter creates an empty notification center.
func NewCenter(logger *zap.Logger, opts ...Option) *Center {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Center{
		logger:  logger,
		ttl:     DefaultTTL,
		loading: make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Center) broadcast(ev Event) {
	if c.hub != nil {
		c.hub.Broadcast(ev)
	}
}

// Notify replaces any visible notification with a new one and schedules its
// auto-dismissal. The displaced notification's timer is stopped so it cannot
// dismiss the replacement.
func (c *Center) Notify(message string, severity Severity) *Notification {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	n := &Notification{
		ID:       uuid.NewString(),
		Message:  message,
		Severity: severity.Normalize(),
	}
	c.current = n
	id := n.ID
	c.timer = time.AfterFunc(c.ttl, func() { c.Dismiss(id) })
	c.mu.Unlock()

	c.logger.Debug("notification shown",
		zap.String("id", n.ID),
		zap.String("severity", string(n.Severity)))
	c.broadcast(Event{Kind: EventNotification, Notification: n})
	return n
}

// Dismiss clears the notification with the given id. A stale id (already
// replaced or dismissed) is a no-op.
func (c *Center) Dismiss(id string) {
	c.mu.Lock()
	if c.current == nil || c.current.ID != id {
		c.mu.Unlock()
		return
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.current = nil
	c.mu.Unlock()

	c.broadcast(Event{Kind: EventNotificationCleared})
}

// Current returns the visible notification, or nil.
func (c *Center) Current() *Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// OpenModal opens a dialog, closing any dialog already open.
func (c *Center) OpenModal(title, content string) *Modal {
	c.mu.Lock()
	closed := c.modal
	m := &Modal{ID: uuid.NewString(), Title: title, Content: content}
	c.modal = m
	c.mu.Unlock()

	if closed != nil {
		c.broadcast(Event{Kind: EventModalClosed, Modal: closed})
	}
	c.broadcast(Event{Kind: EventModalOpened, Modal: m})
	return m
}

// CloseModal closes the dialog with the given id. Closing a dialog that is
// no longer open is a no-op, so a late close cannot tear down a newer dialog.
func (c *Center) CloseModal(id string) {
	c.mu.Lock()
	if c.modal == nil || c.modal.ID != id {
		c.mu.Unlock()
		return
	}
	closed := c.modal
	c.modal = nil
	c.mu.Unlock()

	c.broadcast(Event{Kind: EventModalClosed, Modal: closed})
}

// CurrentModal returns the open dialog, or nil.
func (c *Center) CurrentModal() *Modal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.modal
}

// SetLoading marks a container as busy with the given message, replacing its
// previous content.
func (c *Center) SetLoading(container, message string) {
	c.mu.Lock()
	c.loading[container] = message
	c.mu.Unlock()
	c.broadcast(Event{Kind: EventLoading, Container: container, Message: message})
}

// ClearLoading removes a container's loading state.
func (c *Center) ClearLoading(container string) {
	c.mu.Lock()
	_, ok := c.loading[container]
	delete(c.loading, container)
	c.mu.Unlock()
	if ok {
		c.broadcast(Event{Kind: EventLoadingCleared, Container: container})
	}
}

// Loading reports the loading message for a container.
func (c *Center) Loading(container string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, ok := c.loading[container]
	return msg, ok
}
