// Package library keeps per-patient lists: bookmarked doctors and booking history.
package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrUserRequired    = errors.New("library: user id required")
	ErrBookmarkInvalid = errors.New("library: bookmark needs a doctor id or name")
)

// Bookmark is a saved doctor.
type Bookmark struct {
	DoctorID  string    `json:"doctor_id,omitempty"`
	Name      string    `json:"name"`
	Specialty string    `json:"specialty,omitempty"`
	AddedAt   time.Time `json:"added_at"`
}

// same matches on doctor id, or on name when either side lacks an id.
func (b Bookmark) same(other Bookmark) bool {
	if b.DoctorID != "" && other.DoctorID != "" {
		return b.DoctorID == other.DoctorID
	}
	return strings.EqualFold(strings.TrimSpace(b.Name), strings.TrimSpace(other.Name))
}

// Bookmarks stores each user's bookmarks as one JSON array.
type Bookmarks struct {
	redis  *redis.Client
	tracer trace.Tracer
	now    func() time.Time
}

func NewBookmarks(client *redis.Client) *Bookmarks {
	if client == nil {
		panic("library: redis client cannot be nil")
	}
	return &Bookmarks{
		redis:  client,
		tracer: otel.Tracer("patientportal.internal.library.bookmarks"),
		now:    time.Now,
	}
}

func bookmarksKey(userID string) string {
	return fmt.Sprintf("bookmarked_doctors:%s", userID)
}

func (s *Bookmarks) List(ctx context.Context, userID string) ([]Bookmark, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	ctx, span := s.tracer.Start(ctx, "library.list_bookmarks")
	defer span.End()
	return s.load(ctx, s.redis, userID)
}

// Toggle adds b when absent and removes it when present. It reports
// whether b is bookmarked afterwards.
func (s *Bookmarks) Toggle(ctx context.Context, userID string, b Bookmark) (bool, []Bookmark, error) {
	if userID == "" {
		return false, nil, ErrUserRequired
	}
	if b.DoctorID == "" && strings.TrimSpace(b.Name) == "" {
		return false, nil, ErrBookmarkInvalid
	}
	ctx, span := s.tracer.Start(ctx, "library.toggle_bookmark")
	defer span.End()

	key := bookmarksKey(userID)
	var (
		added bool
		out   []Bookmark
	)
	err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := s.load(ctx, tx, userID)
		if err != nil {
			return err
		}
		next := make([]Bookmark, 0, len(current)+1)
		removed := false
		for _, existing := range current {
			if existing.same(b) {
				removed = true
				continue
			}
			next = append(next, existing)
		}
		if !removed {
			if b.AddedAt.IsZero() {
				b.AddedAt = s.now().UTC()
			}
			next = append(next, b)
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("library: failed to marshal bookmarks: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, 0)
			return nil
		})
		if err != nil {
			return err
		}
		added, out = !removed, next
		return nil
	}, key)
	if err != nil {
		span.RecordError(err)
		return false, nil, fmt.Errorf("library: failed to toggle bookmark: %w", err)
	}
	return added, out, nil
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *Bookmarks) load(ctx context.Context, r getter, userID string) ([]Bookmark, error) {
	data, err := r.Get(ctx, bookmarksKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Bookmark{}, nil
		}
		return nil, fmt.Errorf("library: failed to load bookmarks: %w", err)
	}
	var out []Bookmark
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("library: failed to decode bookmarks: %w", err)
	}
	if out == nil {
		out = []Bookmark{}
	}
	return out, nil
}
