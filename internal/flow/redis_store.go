package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultStateTTL = 24 * time.Hour

// RedisStore keeps each session's State as a JSON blob under
// appointment_data:{sid}. Writes run under WATCH so a concurrent save
// surfaces as ErrStaleState instead of a lost update.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("flow: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		tracer: otel.Tracer("patientportal.internal.flow.store"),
		now:    time.Now,
	}
}

func stateKey(sessionID string) string {
	return fmt.Sprintf("appointment_data:%s", sessionID)
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (*State, error) {
	if sessionID == "" {
		return nil, ErrSessionRequired
	}
	ctx, span := s.tracer.Start(ctx, "flow.load_state")
	defer span.End()

	data, err := s.client.Get(ctx, stateKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return NewState(sessionID), nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("flow: load state: %w", err)
	}
	st, err := decodeState(data)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return st, nil
}

func (s *RedisStore) Save(ctx context.Context, st *State) error {
	if st == nil || st.SessionID == "" {
		return ErrSessionRequired
	}
	ctx, span := s.tracer.Start(ctx, "flow.save_state")
	defer span.End()

	key := stateKey(st.SessionID)
	next := st.Clone()
	next.Version = st.Version + 1
	next.UpdatedAt = s.now().UTC()
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("flow: marshal state: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := storedVersion(ctx, tx, key)
		if err != nil {
			return err
		}
		if stored != st.Version {
			return ErrStaleState
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}, key)
	switch {
	case err == nil:
	case errors.Is(err, redis.TxFailedErr), errors.Is(err, ErrStaleState):
		return ErrStaleState
	default:
		span.RecordError(err)
		return fmt.Errorf("flow: save state: %w", err)
	}
	st.Version = next.Version
	st.UpdatedAt = next.UpdatedAt
	return nil
}

func storedVersion(ctx context.Context, tx *redis.Tx, key string) (int64, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var head struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return 0, fmt.Errorf("flow: decode stored version: %w", err)
	}
	return head.Version, nil
}
