// Package postgres provides a PostgreSQL LISTEN/NOTIFY implementation of
// the classsync change feed. Each watched collection maps to one
// notification channel whose payload is a JSON-encoded change event.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lib/pq"

	"github.com/courseflow/class-sync/classsync"
	"github.com/courseflow/class-sync/logging"
)

// channelPrefix namespaces the notification channels used by the feed.
const channelPrefix = "classsync_"

// Feed is a classsync.ChangeFeed backed by PostgreSQL LISTEN/NOTIFY.
type Feed struct {
	logger *logging.Logger

	listener *pq.Listener
	closed   int32 // atomic

	mu       sync.RWMutex
	handlers map[string][]classsync.ChangeFeedHandler // channel -> handlers

	reconnectInterval   time.Duration
	notificationTimeout time.Duration
	pingInterval        time.Duration

	done chan struct{}
}

// Option configures a Feed.
type Option func(*Feed)

// WithLogger sets the feed logger.
func WithLogger(logger *logging.Logger) Option {
	return func(f *Feed) { f.logger = logger }
}

// WithReconnectInterval sets the minimum reconnect backoff.
func WithReconnectInterval(interval time.Duration) Option {
	return func(f *Feed) { f.reconnectInterval = interval }
}

// NewFeed creates a feed connected to the database described by conninfo.
func NewFeed(conninfo string, opts ...Option) (*Feed, error) {
	if conninfo == "" {
		return nil, fmt.Errorf("connection string cannot be empty")
	}

	f := &Feed{
		handlers:            make(map[string][]classsync.ChangeFeedHandler),
		reconnectInterval:   5 * time.Second,
		notificationTimeout: 30 * time.Second,
		pingInterval:        90 * time.Second,
		done:                make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = logging.Default()
	}
	f.logger = f.logger.WithComponent("postgres_feed")

	f.listener = pq.NewListener(conninfo, f.reconnectInterval, f.notificationTimeout, f.connectionEvent)

	return f, nil
}

// Subscribe registers a handler for a collection and issues LISTEN on the
// collection's channel. The first subscription starts the notify loop.
func (f *Feed) Subscribe(ctx context.Context, collection string, handler classsync.ChangeFeedHandler) error {
	if atomic.LoadInt32(&f.closed) == 1 {
		return fmt.Errorf("feed is closed")
	}

	channel := channelPrefix + collection

	f.mu.Lock()
	first := len(f.handlers) == 0
	f.handlers[channel] = append(f.handlers[channel], handler)
	f.mu.Unlock()

	if err := f.listener.Listen(channel); err != nil && err != pq.ErrChannelAlreadyOpen {
		f.mu.Lock()
		handlers := f.handlers[channel]
		f.handlers[channel] = handlers[:len(handlers)-1]
		f.mu.Unlock()
		return fmt.Errorf("failed to listen on channel %s: %w", channel, err)
	}

	if first {
		go f.notifyLoop(ctx)
	}

	f.logger.Info("subscribed to change feed collection",
		slog.String("collection", collection),
		slog.String("channel", channel))
	return nil
}

// Close stops the notify loop and the underlying listener.
func (f *Feed) Close() error {
	if !atomic.CompareAndSwapInt32(&f.closed, 0, 1) {
		return nil
	}
	close(f.done)
	return f.listener.Close()
}

// connectionEvent reacts to pq listener lifecycle events, re-issuing
// LISTEN for every channel after a reconnect.
func (f *Feed) connectionEvent(event pq.ListenerEventType, err error) {
	switch event {
	case pq.ListenerEventConnected:
		f.logger.Info("connected to postgres for LISTEN/NOTIFY")
	case pq.ListenerEventDisconnected:
		f.logger.Warn("disconnected from postgres", slog.Any("error", err))
	case pq.ListenerEventReconnected:
		f.logger.Info("reconnected to postgres, re-subscribing channels")
		f.resubscribe()
	case pq.ListenerEventConnectionAttemptFailed:
		f.logger.Warn("postgres connection attempt failed", slog.Any("error", err))
	}
}

func (f *Feed) resubscribe() {
	f.mu.RLock()
	channels := make([]string, 0, len(f.handlers))
	for channel := range f.handlers {
		channels = append(channels, channel)
	}
	f.mu.RUnlock()

	for _, channel := range channels {
		if err := f.listener.Listen(channel); err != nil && err != pq.ErrChannelAlreadyOpen {
			f.logger.Error("failed to re-subscribe channel",
				slog.String("channel", channel),
				slog.Any("error", err))
		}
	}
}

func (f *Feed) notifyLoop(ctx context.Context) {
	defer f.logger.Info("change feed loop stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		case notification := <-f.listener.Notify:
			if notification != nil {
				f.dispatch(notification)
			}
		case <-time.After(f.pingInterval):
			// Keep the connection alive between notifications.
			go func() {
				if err := f.listener.Ping(); err != nil {
					f.logger.Warn("feed ping failed", slog.Any("error", err))
				}
			}()
		}
	}
}

// dispatch decodes a notification payload and fans it out. Handler errors
// are logged and never unsubscribe the handler: a failed re-sync must not
// tear down the feed.
func (f *Feed) dispatch(notification *pq.Notification) {
	event, err := decodeEvent(notification.Extra)
	if err != nil {
		f.logger.Error("failed to decode change event payload",
			slog.String("channel", notification.Channel),
			slog.Any("error", err))
		return
	}

	f.mu.RLock()
	handlers := append([]classsync.ChangeFeedHandler(nil), f.handlers[notification.Channel]...)
	f.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(event); err != nil {
			f.logger.Error("change feed handler failed",
				slog.String("channel", notification.Channel),
				slog.String("collection", event.Collection),
				slog.Any("error", err))
		}
	}
}

// decodeEvent parses the JSON payload carried by a notification.
func decodeEvent(payload string) (classsync.ChangeEvent, error) {
	var event classsync.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return classsync.ChangeEvent{}, fmt.Errorf("failed to parse notification payload: %w", err)
	}
	if event.Type == "" {
		return classsync.ChangeEvent{}, fmt.Errorf("notification payload missing event_type")
	}
	return event, nil
}

var _ classsync.ChangeFeed = (*Feed)(nil)
