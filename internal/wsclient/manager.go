// Package wsclient keeps one websocket to the game server alive for a
// client: it dials with the player's token, queues sends while offline,
// reconnects with backoff, and fans incoming frames out to subscribers.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/wordhex-backend/internal/auth"
	"github.com/DoyleJ11/wordhex-backend/internal/types"
)

var ErrClosed = errors.New("connection manager closed")

type Status string

const (
	StatusIdle         Status = "idle"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusFailed       Status = "failed"
	StatusClosed       Status = "closed"
)

type Options struct {
	URL    string
	Tokens auth.TokenSource

	BaseDelay   time.Duration // first reconnect delay, doubled per attempt
	MaxDelay    time.Duration
	MaxAttempts int // consecutive failed dials before giving up; 0 retries forever

	RetryInterval time.Duration // how often queued sends are retried
	MaxPending    int

	// Handshake returns the frames written on every new connection before
	// queued sends, e.g. JOIN and JOINLOBBY so the server re-attaches the
	// player first.
	Handshake func() []types.ClientMessage

	Logger *zap.Logger
}

func (o *Options) defaults() {
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 500 * time.Millisecond
	}
	if o.MaxPending <= 0 {
		o.MaxPending = 16
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

type Handler func(types.ServerMessage)

type queued struct {
	seq uint64
	msg types.ClientMessage
}

// Manager is safe for concurrent use. Handlers and status observers all run
// on one dispatch goroutine, in arrival order.
type Manager struct {
	opts Options
	log  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group
	events chan func()

	mu         sync.Mutex
	conn       *websocket.Conn
	status     Status
	started    bool
	closed     bool
	pending    []queued // at most one per message type, oldest first
	nextSeq    uint64
	subs       map[uint64]Handler
	statusSubs map[uint64]func(Status)
	nextID     uint64

	writeMu sync.Mutex
	flushMu sync.Mutex
}

func New(opts Options) *Manager {
	opts.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		opts:       opts,
		log:        opts.Logger.Named("wsclient"),
		ctx:        ctx,
		cancel:     cancel,
		events:     make(chan func(), 256),
		status:     StatusIdle,
		subs:       make(map[uint64]Handler),
		statusSubs: make(map[uint64]func(Status)),
	}
	m.group.Go(m.dispatch)
	return m
}

// Connect starts the connection lifecycle. It returns at once; watch
// OnStatus for the outcome. Without a token the dial waits until one exists.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.started {
		return nil
	}
	m.started = true

	stop := context.AfterFunc(ctx, m.cancel)
	m.group.Go(func() error {
		defer stop()
		return m.run()
	})
	m.group.Go(m.retryPending)
	return nil
}

// Send writes msg now when connected. Otherwise msg is queued, replacing a
// queued message of the same type, and retried every RetryInterval.
func (m *Manager) Send(msg types.ClientMessage) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	conn := m.conn
	backlog := len(m.pending) > 0
	m.mu.Unlock()

	if conn != nil && !backlog {
		if err := m.write(conn, msg); err == nil {
			return nil
		}
	}
	m.enqueue(msg)
	if conn != nil {
		m.flush()
	}
	return nil
}

// Subscribe registers h for every incoming frame until the returned func is
// called.
func (m *Manager) Subscribe(h Handler) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = h
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// OnStatus registers fn for status changes until the returned func is called.
func (m *Manager) OnStatus(fn func(Status)) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.statusSubs[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.statusSubs, id)
		m.mu.Unlock()
	}
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Close ends the lifecycle. Pending sends are discarded.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	conn := m.conn
	m.conn = nil
	m.pending = nil
	m.mu.Unlock()

	m.setStatus(StatusClosed)
	if conn != nil {
		if err := conn.Close(websocket.StatusNormalClosure, "bye"); err != nil {
			m.log.Debug("close", zap.Error(err))
		}
	}
	m.cancel()
	return m.group.Wait()
}

func (m *Manager) run() error {
	failures := 0
	for {
		token, ok := m.awaitToken()
		if !ok {
			return nil
		}
		if failures == 0 {
			m.setStatus(StatusConnecting)
		}

		conn, err := m.dial(token)
		if err != nil {
			failures++
			m.log.Debug("dial failed", zap.Int("attempt", failures), zap.Error(err))
			if m.opts.MaxAttempts > 0 && failures >= m.opts.MaxAttempts {
				m.log.Warn("giving up on server", zap.Int("attempts", failures), zap.Error(err))
				m.setStatus(StatusFailed)
				return nil
			}
			m.setStatus(StatusReconnecting)
			if !m.sleep(backoff(failures, m.opts.BaseDelay, m.opts.MaxDelay)) {
				return nil
			}
			continue
		}

		failures = 0
		// Sends stay queued until the handshake is on the wire.
		if err := m.handshake(conn); err != nil {
			conn.CloseNow()
			if m.ctx.Err() != nil {
				return nil
			}
			m.log.Info("handshake failed, reconnecting", zap.Error(err))
			m.setStatus(StatusReconnecting)
			failures = 1
			if !m.sleep(backoff(failures, m.opts.BaseDelay, m.opts.MaxDelay)) {
				return nil
			}
			continue
		}
		m.mu.Lock()
		m.conn = conn
		m.mu.Unlock()
		m.setStatus(StatusConnected)
		m.flush()

		err = m.readLoop(conn)

		m.mu.Lock()
		if m.conn == conn {
			m.conn = nil
		}
		m.mu.Unlock()
		conn.CloseNow()
		if m.ctx.Err() != nil {
			return nil
		}
		m.log.Info("connection lost, reconnecting", zap.Error(err))
		m.setStatus(StatusReconnecting)
		failures = 1
		if !m.sleep(backoff(failures, m.opts.BaseDelay, m.opts.MaxDelay)) {
			return nil
		}
	}
}

// awaitToken polls the token source; a client without an identity yet does
// not dial.
func (m *Manager) awaitToken() (string, bool) {
	for {
		if tok, ok := m.opts.Tokens.CurrentToken(); ok {
			return tok, true
		}
		if !m.sleep(m.opts.RetryInterval) {
			return "", false
		}
	}
}

func (m *Manager) handshake(conn *websocket.Conn) error {
	if m.opts.Handshake == nil {
		return nil
	}
	for _, msg := range m.opts.Handshake() {
		if err := m.write(conn, msg); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) dial(token string) (*websocket.Conn, error) {
	u, err := url.Parse(m.opts.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(m.ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	return conn, err
}

func (m *Manager) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(m.ctx)
		if err != nil {
			return err
		}
		var msg types.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			m.log.Warn("undecodable frame", zap.Error(err))
			continue
		}
		m.post(func() {
			for _, h := range m.handlers() {
				h(msg)
			}
		})
	}
}

func (m *Manager) write(conn *websocket.Conn, msg types.ClientMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(m.ctx, 3*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}

func (m *Manager) enqueue(msg types.ClientMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.pending {
		if p.msg.Type == msg.Type {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			break
		}
	}
	if len(m.pending) >= m.opts.MaxPending {
		m.log.Warn("send queue full, dropping oldest", zap.String("type", string(m.pending[0].msg.Type)))
		m.pending = m.pending[1:]
	}
	m.nextSeq++
	m.pending = append(m.pending, queued{seq: m.nextSeq, msg: msg})
}

// flush writes queued messages in order and stops at the first failure.
// Only the entry that was written is removed: a message that superseded it
// mid-write stays queued.
func (m *Manager) flush() {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()
	for {
		m.mu.Lock()
		if m.conn == nil || len(m.pending) == 0 {
			m.mu.Unlock()
			return
		}
		conn, q := m.conn, m.pending[0]
		m.mu.Unlock()

		if err := m.write(conn, q.msg); err != nil {
			return
		}

		m.mu.Lock()
		for i, p := range m.pending {
			if p.seq == q.seq {
				m.pending = append(m.pending[:i], m.pending[i+1:]...)
				break
			}
		}
		m.mu.Unlock()
	}
}

func (m *Manager) retryPending() error {
	t := time.NewTicker(m.opts.RetryInterval)
	defer t.Stop()
	for {
		select {
		case <-m.ctx.Done():
			return nil
		case <-t.C:
			m.flush()
		}
	}
}

func (m *Manager) dispatch() error {
	for {
		select {
		case <-m.ctx.Done():
			return nil
		case fn := <-m.events:
			fn()
		}
	}
}

func (m *Manager) post(fn func()) {
	select {
	case m.events <- fn:
	case <-m.ctx.Done():
	}
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	if m.status == s {
		m.mu.Unlock()
		return
	}
	m.status = s
	observers := make([]func(Status), 0, len(m.statusSubs))
	for _, fn := range m.statusSubs {
		observers = append(observers, fn)
	}
	m.mu.Unlock()

	m.post(func() {
		for _, fn := range observers {
			fn(s)
		}
	})
}

func (m *Manager) handlers() []Handler {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Handler, 0, len(m.subs))
	for _, h := range m.subs {
		out = append(out, h)
	}
	return out
}

func (m *Manager) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-m.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// backoff is base*2^(attempt-1) capped at max, plus up to 20% jitter.
func backoff(attempt int, base, max time.Duration) time.Duration {
	d := base
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d + rand.N(d/5+1)
}
