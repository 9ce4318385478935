// Package subscription implements the graphql-transport-ws protocol and the
// change feed that backs generated subscription fields. Events arrive over
// PostgreSQL LISTEN/NOTIFY and fan out to per-table subscribers.
package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// NotifyChannel is the LISTEN/NOTIFY channel the server watches. Triggers
// installed on tracked tables are expected to NOTIFY on it with a JSON
// payload of the form {"operation": ..., "table": ..., "data": {...}}.
const NotifyChannel = "pgql_changes"

// Event is one row change. Data holds the row image when the trigger payload
// carried one; a payload without row data produces an event whose Data is nil,
// leaving only the operation/table/timestamp tuple.
type Event struct {
	Operation string                 `json:"operation"`
	Table     string                 `json:"table"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Source produces change events for one table. Subscribe returns a channel
// that closes when ctx is canceled or the source shuts down.
type Source interface {
	Subscribe(ctx context.Context, table string) (<-chan Event, error)
}

type subscriber struct {
	table string
	ch    chan Event
}

// ListenSource dispatches LISTEN/NOTIFY payloads to table subscribers. One
// dedicated connection serves all subscriptions; Run owns it and reconnects
// with backoff when it drops.
type ListenSource struct {
	connString string
	logger     *slog.Logger

	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
	closed bool
}

// NewListenSource returns a source that will listen on connString once Run
// is started.
func NewListenSource(connString string, logger *slog.Logger) *ListenSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &ListenSource{
		connString: connString,
		logger:     logger,
		subs:       make(map[int]*subscriber),
	}
}

// Subscribe registers interest in changes to table. The returned channel is
// buffered; a subscriber that stops draining loses events rather than
// blocking the dispatcher.
func (s *ListenSource) Subscribe(ctx context.Context, table string) (<-chan Event, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("subscription source is closed")
	}
	s.nextID++
	id := s.nextID
	sub := &subscriber{table: table, ch: make(chan Event, 16)}
	s.subs[id] = sub
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.remove(id)
	}()

	return sub.ch, nil
}

func (s *ListenSource) remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(sub.ch)
	}
}

// Run listens for notifications until ctx is canceled. Connection failures
// trigger reconnects with a capped backoff.
func (s *ListenSource) Run(ctx context.Context) error {
	defer s.closeAll()

	backoff := time.Second
	for {
		if err := s.listen(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("notification listener disconnected",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", backoff))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		return nil
	}
}

func (s *ListenSource) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, s.connString)
	if err != nil {
		return fmt.Errorf("failed to connect listener: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", NotifyChannel, err)
	}
	s.logger.Info("listening for database notifications", slog.String("channel", NotifyChannel))

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to wait for notification: %w", err)
		}
		s.dispatch(decodeEvent(notification.Payload))
	}
}

// decodeEvent parses a notification payload. Malformed or empty payloads
// still produce an event so subscribers learn that something changed; such
// events carry no table and are dropped by the table filter in dispatch
// unless the payload at least named one.
func decodeEvent(payload string) Event {
	event := Event{Timestamp: time.Now().UTC()}
	if payload == "" {
		return event
	}
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return Event{Timestamp: time.Now().UTC()}
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return event
}

func (s *ListenSource) dispatch(event Event) {
	if event.Table == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.table != event.Table {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			s.logger.Warn("dropping change event for slow subscriber",
				slog.String("table", event.Table))
		}
	}
}

func (s *ListenSource) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, sub := range s.subs {
		delete(s.subs, id)
		close(sub.ch)
	}
}

// TickerSource emits operation/table/timestamp tuples on a fixed interval.
// It stands in when no LISTEN/NOTIFY triggers are installed: subscribers
// observe that the table may have changed but receive no row data.
type TickerSource struct {
	Interval time.Duration
}

func (s *TickerSource) Subscribe(ctx context.Context, table string) (<-chan Event, error) {
	interval := s.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ch := make(chan Event, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				select {
				case ch <- Event{Operation: "UNKNOWN", Table: table, Timestamp: t.UTC()}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}
