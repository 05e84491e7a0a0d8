package calls

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/patient-portal/internal/consultation"
	"github.com/wolfman30/patient-portal/internal/observability/metrics"
	"github.com/wolfman30/patient-portal/pkg/logging"
)

const (
	DefaultAutoReject    = 30 * time.Second
	DefaultAcceptTimeout = 45 * time.Second
)

// Notifier delivers events to a user's open sockets.
type Notifier interface {
	Notify(userID string, ev Event)
}

// ManagerConfig holds the invitation timers. Zero values use the defaults.
type ManagerConfig struct {
	AutoReject    time.Duration
	AcceptTimeout time.Duration
}

// Manager owns invitation lifecycles. Two timers run per pending
// invitation: the callee popup auto-rejects after AutoReject and the
// caller gives up after AcceptTimeout. Both stop on any terminal change.
type Manager struct {
	mu          sync.Mutex
	invitations map[string]*pending

	autoReject    time.Duration
	acceptTimeout time.Duration
	notifier      Notifier
	metrics       *metrics.CallMetrics
	logger        *logging.Logger
	newID         func() string
	now           func() time.Time
}

type pending struct {
	inv          Invitation
	rejectTimer  *time.Timer
	timeoutTimer *time.Timer
}

func (p *pending) stopTimers() {
	if p.rejectTimer != nil {
		p.rejectTimer.Stop()
	}
	if p.timeoutTimer != nil {
		p.timeoutTimer.Stop()
	}
}

func NewManager(cfg ManagerConfig, notifier Notifier, m *metrics.CallMetrics, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.AutoReject <= 0 {
		cfg.AutoReject = DefaultAutoReject
	}
	if cfg.AcceptTimeout <= 0 {
		cfg.AcceptTimeout = DefaultAcceptTimeout
	}
	return &Manager{
		invitations:   make(map[string]*pending),
		autoReject:    cfg.AutoReject,
		acceptTimeout: cfg.AcceptTimeout,
		notifier:      notifier,
		metrics:       m,
		logger:        logger,
		newID:         uuid.NewString,
		now:           time.Now,
	}
}

// Invite opens a pending invitation from caller to callee and shows the
// callee's popup.
func (m *Manager) Invite(callerID, calleeID, appointmentID string, modality consultation.Modality) (Invitation, error) {
	appointmentID = strings.TrimSpace(appointmentID)
	if appointmentID == "" {
		return Invitation{}, ErrAppointmentRequired
	}
	if strings.TrimSpace(calleeID) == "" || strings.TrimSpace(callerID) == "" {
		return Invitation{}, ErrCalleeRequired
	}
	if !modality.Valid() {
		modality = consultation.Video
	}
	now := m.now().UTC()
	inv := Invitation{
		ID:            m.newID(),
		RoomID:        RoomID(appointmentID),
		AppointmentID: appointmentID,
		CallerID:      callerID,
		CalleeID:      calleeID,
		Modality:      modality,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	p := &pending{inv: inv}
	m.mu.Lock()
	m.invitations[inv.ID] = p
	p.rejectTimer = time.AfterFunc(m.autoReject, func() {
		m.expire(inv.ID, StatusRejected, "no_answer")
	})
	p.timeoutTimer = time.AfterFunc(m.acceptTimeout, func() {
		m.expire(inv.ID, StatusTimedOut, "accept_timeout")
	})
	m.mu.Unlock()

	m.metrics.InvitationOpened()
	m.logger.Info("call invitation sent", "invitation_id", inv.ID, "room_id", inv.RoomID, "callee_id", calleeID)
	m.notify(Event{Type: EventInvitation, Invitation: inv}, calleeID)
	return inv, nil
}

// expire is the timer path. It does nothing once the invitation has left
// pending.
func (m *Manager) expire(id string, status Status, reason string) {
	m.mu.Lock()
	p, ok := m.invitations[id]
	if !ok || p.inv.Status != StatusPending {
		m.mu.Unlock()
		return
	}
	inv := m.finish(p, status, reason)
	m.mu.Unlock()

	m.logger.Info("call invitation expired", "invitation_id", id, "status", string(status))
	m.notify(Event{Type: eventFor(status), Invitation: inv}, inv.CallerID, inv.CalleeID)
}

// finish moves p to a terminal status and forgets it. Caller holds mu.
func (m *Manager) finish(p *pending, status Status, reason string) Invitation {
	p.stopTimers()
	wasPending := p.inv.Status == StatusPending
	p.inv.Status = status
	p.inv.Reason = reason
	p.inv.UpdatedAt = m.now().UTC()
	delete(m.invitations, p.inv.ID)
	if wasPending {
		m.metrics.InvitationClosed(string(status))
	}
	return p.inv
}

func (m *Manager) Accept(id, userID string) (Invitation, error) {
	m.mu.Lock()
	p, ok := m.invitations[id]
	if !ok {
		m.mu.Unlock()
		return Invitation{}, ErrInvitationNotFound
	}
	if p.inv.CalleeID != userID {
		m.mu.Unlock()
		return Invitation{}, ErrNotParticipant
	}
	if p.inv.Status != StatusPending {
		m.mu.Unlock()
		return Invitation{}, ErrNotPending
	}
	p.stopTimers()
	p.inv.Status = StatusAccepted
	p.inv.UpdatedAt = m.now().UTC()
	inv := p.inv
	m.mu.Unlock()

	m.metrics.InvitationClosed(string(StatusAccepted))
	m.notify(Event{Type: EventAccepted, Invitation: inv}, inv.CallerID, inv.CalleeID)
	return inv, nil
}

func (m *Manager) Reject(id, userID string) (Invitation, error) {
	return m.close(id, userID, StatusRejected, "declined", func(inv Invitation) bool {
		return inv.CalleeID == userID
	}, StatusPending)
}

func (m *Manager) Cancel(id, userID string) (Invitation, error) {
	return m.close(id, userID, StatusCanceled, "caller_canceled", func(inv Invitation) bool {
		return inv.CallerID == userID
	}, StatusPending)
}

// End hangs up an accepted call. Either side may end it.
func (m *Manager) End(id, userID string) (Invitation, error) {
	return m.close(id, userID, StatusEnded, "hangup", func(inv Invitation) bool {
		return inv.CallerID == userID || inv.CalleeID == userID
	}, StatusAccepted)
}

func (m *Manager) close(id, userID string, status Status, reason string, allowed func(Invitation) bool, from Status) (Invitation, error) {
	m.mu.Lock()
	p, ok := m.invitations[id]
	if !ok {
		m.mu.Unlock()
		return Invitation{}, ErrInvitationNotFound
	}
	if !allowed(p.inv) {
		m.mu.Unlock()
		return Invitation{}, ErrNotParticipant
	}
	if p.inv.Status != from {
		m.mu.Unlock()
		if from == StatusAccepted {
			return Invitation{}, ErrNotAccepted
		}
		return Invitation{}, ErrNotPending
	}
	inv := m.finish(p, status, reason)
	m.mu.Unlock()

	m.notify(Event{Type: eventFor(status), Invitation: inv}, inv.CallerID, inv.CalleeID)
	return inv, nil
}

// Disconnected ends every accepted call userID takes part in. The hub
// calls it when the user's last socket closes, since nobody is left to
// send the hangup.
func (m *Manager) Disconnected(userID string) []Invitation {
	m.mu.Lock()
	var ended []Invitation
	for _, p := range m.invitations {
		if p.inv.Status != StatusAccepted {
			continue
		}
		if p.inv.CallerID == userID || p.inv.CalleeID == userID {
			ended = append(ended, m.finish(p, StatusEnded, "disconnected"))
		}
	}
	m.mu.Unlock()

	for _, inv := range ended {
		m.logger.Info("call ended on disconnect", "invitation_id", inv.ID, "user_id", userID)
		m.notify(Event{Type: EventEnded, Invitation: inv}, inv.CallerID, inv.CalleeID)
	}
	return ended
}

func (m *Manager) Get(id string) (Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.invitations[id]
	if !ok {
		return Invitation{}, ErrInvitationNotFound
	}
	return p.inv, nil
}

// Pending lists the popups currently shown to userID.
func (m *Manager) Pending(userID string) []Invitation {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Invitation
	for _, p := range m.invitations {
		if p.inv.CalleeID == userID && p.inv.Status == StatusPending {
			out = append(out, p.inv)
		}
	}
	return out
}

// Shutdown stops every timer. Used on server exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.invitations {
		p.stopTimers()
		delete(m.invitations, id)
	}
}

func (m *Manager) notify(ev Event, userIDs ...string) {
	if m.notifier == nil {
		return
	}
	seen := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		m.notifier.Notify(id, ev)
	}
}
