package library

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const maxHistory = 100

// HistoryEntry is one completed booking.
type HistoryEntry struct {
	BookingID           string    `json:"booking_id"`
	ReceiptID           string    `json:"receipt_id"`
	DoctorID            string    `json:"doctor_id"`
	DoctorName          string    `json:"doctor_name"`
	Specialty           string    `json:"specialty,omitempty"`
	PatientName         string    `json:"patient_name,omitempty"`
	Date                string    `json:"date"`
	Slot                string    `json:"slot"`
	ConsultationSubtype string    `json:"consultation_subtype"`
	AmountMinor         int64     `json:"amount_minor"`
	Currency            string    `json:"currency"`
	PaidAt              time.Time `json:"paid_at"`
}

// History is an append-only per-user list, newest first, capped.
type History struct {
	redis  *redis.Client
	tracer trace.Tracer
}

func NewHistory(client *redis.Client) *History {
	if client == nil {
		panic("library: redis client cannot be nil")
	}
	return &History{
		redis:  client,
		tracer: otel.Tracer("patientportal.internal.library.history"),
	}
}

func historyKey(userID string) string {
	return fmt.Sprintf("booking_history:%s", userID)
}

func (h *History) Append(ctx context.Context, userID string, entry HistoryEntry) error {
	if userID == "" {
		return ErrUserRequired
	}
	ctx, span := h.tracer.Start(ctx, "library.append_history")
	defer span.End()

	data, err := json.Marshal(entry)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("library: failed to marshal history entry: %w", err)
	}
	key := historyKey(userID)
	_, err = h.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, key, data)
		p.LTrim(ctx, key, 0, maxHistory-1)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("library: failed to persist history: %w", err)
	}
	return nil
}

func (h *History) List(ctx context.Context, userID string) ([]HistoryEntry, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	ctx, span := h.tracer.Start(ctx, "library.list_history")
	defer span.End()

	raw, err := h.redis.LRange(ctx, historyKey(userID), 0, -1).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("library: failed to load history: %w", err)
	}
	out := make([]HistoryEntry, 0, len(raw))
	for _, item := range raw {
		var e HistoryEntry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			// skip entries written by an older schema
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
