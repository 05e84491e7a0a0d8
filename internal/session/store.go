// Package session keeps the patient's auth record server-side and fans
// login/logout changes out to every open tab of the same session.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultTTL = 7 * 24 * time.Hour

var (
	ErrNotFound          = errors.New("session: not found")
	ErrSessionIDRequired = errors.New("session: session id is required")
)

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Record is what a logged-in session holds.
type Record struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	User      User      `json:"user"`
	CreatedAt time.Time `json:"created_at"`
}

// EventType names an auth change.
type EventType string

const (
	EventLogin  EventType = "login"
	EventLogout EventType = "logout"
)

type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	User      *User     `json:"user,omitempty"`
	At        time.Time `json:"at"`
}

// Store persists records under auth:{sid} and publishes changes on
// auth_events:{sid}.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
	now    func() time.Time
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{
		client: client,
		ttl:    ttl,
		tracer: otel.Tracer("patientportal.internal.session"),
		now:    time.Now,
	}
}

func recordKey(sessionID string) string {
	return fmt.Sprintf("auth:%s", sessionID)
}

func eventsChannel(sessionID string) string {
	return fmt.Sprintf("auth_events:%s", sessionID)
}

func (s *Store) Get(ctx context.Context, sessionID string) (*Record, error) {
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}
	ctx, span := s.tracer.Start(ctx, "session.get")
	defer span.End()

	data, err := s.client.Get(ctx, recordKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: load record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: decode record: %w", err)
	}
	return &rec, nil
}

// Put stores rec and announces the login to other tabs.
func (s *Store) Put(ctx context.Context, rec Record) error {
	if rec.SessionID == "" {
		return ErrSessionIDRequired
	}
	ctx, span := s.tracer.Start(ctx, "session.put")
	defer span.End()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("session: marshal record: %w", err)
	}
	if err := s.client.Set(ctx, recordKey(rec.SessionID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: persist record: %w", err)
	}
	user := rec.User
	return s.publish(ctx, Event{Type: EventLogin, SessionID: rec.SessionID, User: &user})
}

// Delete removes the record and announces the logout. Deleting a missing
// record is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrSessionIDRequired
	}
	ctx, span := s.tracer.Start(ctx, "session.delete")
	defer span.End()

	if err := s.client.Del(ctx, recordKey(sessionID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: delete record: %w", err)
	}
	return s.publish(ctx, Event{Type: EventLogout, SessionID: sessionID})
}

func (s *Store) publish(ctx context.Context, ev Event) error {
	ev.At = s.now().UTC()
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("session: marshal event: %w", err)
	}
	if err := s.client.Publish(ctx, eventsChannel(ev.SessionID), data).Err(); err != nil {
		return fmt.Errorf("session: publish event: %w", err)
	}
	return nil
}

// Watch subscribes to auth changes for sessionID. The returned channel is
// closed when ctx ends or the returned stop func is called.
func (s *Store) Watch(ctx context.Context, sessionID string) (<-chan Event, func(), error) {
	if sessionID == "" {
		return nil, nil, ErrSessionIDRequired
	}
	pubsub := s.client.Subscribe(ctx, eventsChannel(sessionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("session: subscribe: %w", err)
	}

	out := make(chan Event, 8)
	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }
	go func() {
		defer close(out)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				case <-done:
					return
				}
			}
		}
	}()
	return out, stop, nil
}
