package realtime

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/dorvan/medtide/internal/store"
)

// State is the lifecycle state of the push channel.
type State string

const (
	StateDisconnected      State = "disconnected"
	StateConnecting        State = "connecting"
	StateConnected         State = "connected"
	StateRetryScheduled    State = "retry_scheduled"
	StatePermanentlyFailed State = "permanently_failed"
)

// RetryPolicy bounds automatic reconnection. Delay is fixed, not
// backed off; the server decides alarm timing, so there is nothing to
// gain from clever pacing, and a fixed cap keeps a dead link from
// draining battery and network.
type RetryPolicy struct {
	Delay       time.Duration
	MaxAttempts int
}

// DefaultRetryPolicy matches the server contract: 5 seconds between
// attempts, give up after 10.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Delay: 5 * time.Second, MaxAttempts: 10}
}

// FrameHandler consumes inbound frames. A non-nil error marks the
// frame malformed; it is logged and dropped, the channel stays open.
type FrameHandler interface {
	HandleFrame(payload []byte) error
}

// Status is a snapshot of the channel state.
type Status struct {
	State      State  `json:"state"`
	User       string `json:"user,omitempty"`
	ConnID     string `json:"conn_id,omitempty"`
	RetryCount int    `json:"retry_count"`
}

// StatusCallback is invoked on every state change. It runs with the
// manager lock held and must not call back into the Manager.
type StatusCallback func(Status)

// Config holds channel manager configuration. Dialer and Clock default
// to the production implementations when nil.
type Config struct {
	WSBaseURL string
	Policy    RetryPolicy
	Dialer    Dialer
	Clock     clockwork.Clock
	OnStatus  StatusCallback
}

// Manager owns at most one live push channel, bound to the active
// account's token at connect time. Transient closures are retried on a
// fixed delay up to the policy cap; anything else parks the manager in
// StatePermanentlyFailed until the next explicit Connect.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	accounts *store.AccountStore
	handler  FrameHandler
	logger   *slog.Logger

	state      State
	retryCount int
	conn       Conn
	connID     string
	boundUser  string
	boundToken string

	// gen identifies the current connection cycle. Explicit Connect and
	// Teardown calls bump it, which invalidates pending retry timers and
	// running read loops from superseded cycles: a late-firing retry can
	// never open a second channel.
	gen uint64
}

// NewManager creates a channel manager. It starts Disconnected; call
// Connect to open the channel.
func NewManager(cfg Config, accounts *store.AccountStore, handler FrameHandler, logger *slog.Logger) *Manager {
	if cfg.Dialer == nil {
		cfg.Dialer = NewWebsocketDialer()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Policy.Delay <= 0 {
		cfg.Policy.Delay = DefaultRetryPolicy().Delay
	}
	if cfg.Policy.MaxAttempts <= 0 {
		cfg.Policy.MaxAttempts = DefaultRetryPolicy().MaxAttempts
	}

	return &Manager{
		cfg:      cfg,
		accounts: accounts,
		handler:  handler,
		logger:   logger,
		state:    StateDisconnected,
	}
}

// Status returns a snapshot of the channel state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{State: m.state, User: m.boundUser, ConnID: m.connID, RetryCount: m.retryCount}
}

// Connect opens the channel for the current active account. It is a
// no-op while a channel is already Connecting or Connected. With no
// active account the manager stays Disconnected; that is the normal
// logged-out condition, not an error. An explicit Connect starts a
// fresh cycle: the retry budget resets and any scheduled retry from a
// previous cycle is abandoned.
func (m *Manager) Connect(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateConnecting || m.state == StateConnected {
		m.logger.Debug("channel already open, skipping connect", "state", m.state)
		return
	}

	active := m.accounts.Active()
	if active == nil {
		m.logger.Info("no active session, channel will not start")
		m.gen++
		m.boundUser, m.boundToken = "", ""
		m.setStateLocked(StateDisconnected)
		return
	}

	m.gen++
	m.retryCount = 0
	m.boundUser = active.User
	m.boundToken = active.AccessToken
	m.startAttemptLocked(ctx)
}

// Teardown closes any open channel, abandons pending retries, and
// returns to Disconnected.
func (m *Manager) Teardown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gen++
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.retryCount = 0
	m.boundUser, m.boundToken = "", ""
	m.setStateLocked(StateDisconnected)
}

// Rebind tears down the current channel and reconnects against
// whatever account is now active. Used on login, logout, and account
// switch so the channel never keeps serving a stale identity.
func (m *Manager) Rebind(ctx context.Context) {
	m.Teardown()
	m.Connect(ctx)
}

func (m *Manager) startAttemptLocked(ctx context.Context) {
	m.connID = uuid.NewString()
	m.setStateLocked(StateConnecting)

	gen := m.gen
	token := m.boundToken
	go m.dialAndRead(ctx, gen, token)
}

func (m *Manager) dialAndRead(ctx context.Context, gen uint64, token string) {
	addr := m.cfg.WSBaseURL + "/ws?token=" + url.QueryEscape(token)

	conn, err := m.cfg.Dialer.Dial(ctx, addr)

	m.mu.Lock()
	if gen != m.gen {
		// Superseded while dialing: the active account changed or the
		// manager was torn down. Drop the connection, whoever superseded
		// us owns the channel now.
		m.mu.Unlock()
		if err == nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		m.logger.Warn("channel dial failed", "conn_id", m.connID, "error", err)
		m.handleCloseLocked(ctx, err)
		m.mu.Unlock()
		return
	}

	m.conn = conn
	m.retryCount = 0
	m.setStateLocked(StateConnected)
	user, connID := m.boundUser, m.connID
	m.mu.Unlock()

	m.logger.Info("channel connected", "user", user, "conn_id", connID)

	for {
		payload, err := conn.Read(ctx)
		if err != nil {
			m.mu.Lock()
			if gen == m.gen {
				m.conn = nil
				m.logger.Info("channel closed",
					"conn_id", connID, "code", int(websocket.CloseStatus(err)), "error", err)
				m.handleCloseLocked(ctx, err)
			}
			m.mu.Unlock()
			return
		}

		if herr := m.handler.HandleFrame(payload); herr != nil {
			m.logger.Warn("malformed frame dropped", "conn_id", connID, "error", herr)
		}
	}
}

// handleCloseLocked decides what a closure means for the cycle.
// Only transient closures are retried; a clean close or an unknown
// close code is terminal until something external calls Connect again.
func (m *Manager) handleCloseLocked(ctx context.Context, err error) {
	if !transientClose(err) {
		m.logger.Warn("permanent channel failure, no automatic reconnection", "error", err)
		m.setStateLocked(StatePermanentlyFailed)
		return
	}

	if m.retryCount >= m.cfg.Policy.MaxAttempts {
		m.logger.Warn("retry budget exhausted, no automatic reconnection",
			"attempts", m.retryCount)
		m.setStateLocked(StatePermanentlyFailed)
		return
	}

	m.retryCount++
	m.setStateLocked(StateRetryScheduled)
	m.logger.Info("transient channel loss, reconnecting",
		"delay", m.cfg.Policy.Delay, "attempt", m.retryCount, "max", m.cfg.Policy.MaxAttempts)

	gen := m.gen
	go m.retryLater(ctx, gen)
}

func (m *Manager) retryLater(ctx context.Context, gen uint64) {
	select {
	case <-m.cfg.Clock.After(m.cfg.Policy.Delay):
	case <-ctx.Done():
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen || m.state != StateRetryScheduled {
		return // superseded by an explicit connect or teardown
	}
	m.startAttemptLocked(ctx)
}

// transientClose reports whether err represents a recoverable closure:
// an abnormal closure or server error close code, or a transport
// failure that produced no close code at all (dial failures, dropped
// links). Clean closes and every other code are terminal.
func transientClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusAbnormalClosure, websocket.StatusInternalError:
		return true
	case -1:
		return true // no close frame: network-level loss
	default:
		return false
	}
}

func (m *Manager) setStateLocked(s State) {
	m.state = s
	if m.cfg.OnStatus != nil {
		m.cfg.OnStatus(Status{State: s, User: m.boundUser, ConnID: m.connID, RetryCount: m.retryCount})
	}
}
