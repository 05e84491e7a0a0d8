// Package calls relays teleconsultation invitations between patient and
// doctor and issues room tokens for the calling SDK. Media never passes
// through here.
package calls

import (
	"errors"
	"strings"
	"time"

	"github.com/wolfman30/patient-portal/internal/consultation"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusCanceled Status = "canceled"
	StatusTimedOut Status = "timed_out"
	StatusEnded    Status = "ended"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusCanceled, StatusTimedOut, StatusEnded:
		return true
	}
	return false
}

var (
	ErrInvitationNotFound  = errors.New("calls: invitation not found")
	ErrNotPending          = errors.New("calls: invitation is no longer pending")
	ErrNotAccepted         = errors.New("calls: call has not been accepted")
	ErrNotParticipant      = errors.New("calls: user is not part of this call")
	ErrAppointmentRequired = errors.New("calls: appointment id is required")
	ErrCalleeRequired      = errors.New("calls: callee is required")
	errUnknownAction       = errors.New("calls: unknown action")
)

type Invitation struct {
	ID            string                `json:"id"`
	RoomID        string                `json:"room_id"`
	AppointmentID string                `json:"appointment_id"`
	CallerID      string                `json:"caller_id"`
	CalleeID      string                `json:"callee_id"`
	Modality      consultation.Modality `json:"modality"`
	Status        Status                `json:"status"`
	Reason        string                `json:"reason,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// RoomID derives the SDK room for an appointment.
func RoomID(appointmentID string) string {
	return "room_" + strings.TrimSpace(appointmentID)
}

// EventType is sent to participants over the signaling socket.
type EventType string

const (
	EventInvitation EventType = "invitation"
	EventAccepted   EventType = "accepted"
	EventRejected   EventType = "rejected"
	EventCanceled   EventType = "canceled"
	EventTimedOut   EventType = "timed_out"
	EventEnded      EventType = "ended"
)

type Event struct {
	Type       EventType  `json:"type"`
	Invitation Invitation `json:"invitation"`
}

func eventFor(s Status) EventType {
	switch s {
	case StatusAccepted:
		return EventAccepted
	case StatusRejected:
		return EventRejected
	case StatusCanceled:
		return EventCanceled
	case StatusTimedOut:
		return EventTimedOut
	case StatusEnded:
		return EventEnded
	}
	return EventInvitation
}
