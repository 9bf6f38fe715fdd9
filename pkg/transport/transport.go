// Package transport implements the stream transport: socket ownership,
// independent receive/send worker goroutines, the outbound sender queue,
// the connection validation/authentication/heartbeat state machine, and
// per-connection channel/operation registries. It is grounded on
// virtual.go's goroutine-per-direction net.Conn read loop and
// stopChan/WaitGroup shutdown, and on sdo/server.go's mutex-guarded
// Process loop for the send-worker shape.
package transport

import (
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-pvaccess/pva/pkg/auth"
	"github.com/go-pvaccess/pva/pkg/codec"
	"github.com/go-pvaccess/pva/pkg/registry"

	pva "github.com/go-pvaccess/pva"
)

// Role distinguishes which side of the handshake a Transport plays.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// Destroyer is implemented by anything DestroyAll on the channel/operation
// registries can tear down unconditionally.
type Destroyer interface{ Destroy() }

// Disconnecter is notified when the transport itself goes away, so it can
// propagate the failure to whatever is waiting on it (in-flight operations
// learn of disconnect through their owning channel/requester interfaces).
type Disconnecter interface{ Disconnect() }

// Config configures one Transport instance.
type Config struct {
	Role Role

	SendBufferSize    int
	RecvBufferSize    int
	IntrospectionSize uint16

	// ConnectionTimeout is the configured heartbeat/RX-timeout basis.
	// Defaults to 30s.
	ConnectionTimeout time.Duration

	// OfferedPlugins is the server's auth-plugin preference list, least
	// preferred first. Defaults to auth.Names().
	OfferedPlugins []string

	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.SendBufferSize == 0 {
		c.SendBufferSize = pva.DefaultTCPReceiveBufferSize
	}
	if c.RecvBufferSize == 0 {
		c.RecvBufferSize = pva.DefaultTCPReceiveBufferSize
	}
	if c.IntrospectionSize == 0 {
		c.IntrospectionSize = 0xFFFF
	}
	if c.ConnectionTimeout == 0 {
		c.ConnectionTimeout = 30 * time.Second
	}
	if c.OfferedPlugins == nil {
		c.OfferedPlugins = auth.Names()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Transport owns one network connection end to end: the two worker
// goroutines, the codec reader/writer pair, the validation state machine,
// and the channel/operation registries a server connection needs.
type Transport struct {
	cfg  Config
	conn net.Conn

	reader *codec.Reader
	writer *codec.Writer
	table  *dispatchTable

	log *slog.Logger

	sendQ *senderQueue

	Channels   *registry.Registry[any]
	Operations *registry.Registry[any]

	stateMu        sync.Mutex
	state          State
	authSession    auth.Session
	selectedPlugin string

	closed       atomic.Bool
	lastRecv     atomic.Int64
	peerProtocol atomic.Uint32

	// inSendLoop is true only while the send worker goroutine is inside its
	// batch-processing loop. EnqueueSender uses it to tell a reentrant call
	// (a handler completion enqueuing from inside its own Send callback)
	// apart from every other caller, which must queue normally.
	inSendLoop atomic.Bool

	verified     chan struct{}
	verifiedOnce sync.Once

	wg sync.WaitGroup

	disconnectMu sync.Mutex
	disconnectFn []func()
}

// New wires a Transport around conn. It does not start the worker
// goroutines; call Start for that.
func New(conn net.Conn, cfg Config) *Transport {
	cfg.setDefaults()
	fromServer := cfg.Role == RoleServer
	t := &Transport{
		cfg:        cfg,
		conn:       conn,
		reader:     codec.NewReader(conn, cfg.RecvBufferSize),
		writer:     codec.NewWriter(conn, cfg.SendBufferSize, fromServer),
		log:        cfg.Logger,
		sendQ:      newSenderQueue(),
		Channels:   registry.New[any](1),
		Operations: registry.New[any](1),
		verified:   make(chan struct{}),
	}
	if cfg.Role == RoleServer {
		t.table = defaultServerTable()
	} else {
		t.table = defaultClientTable()
	}
	t.lastRecv.Store(time.Now().UnixNano())
	return t
}

func (t *Transport) getState() State {
	t.stateMu.Lock()
	defer t.stateMu.Unlock()
	return t.state
}

func (t *Transport) setState(s State) {
	t.stateMu.Lock()
	t.state = s
	t.stateMu.Unlock()
}

// Reader exposes the codec reader a dispatched HandlerFunc runs against.
// Handlers defined outside this package (a provider's CREATE_CHANNEL/GET/
// PUT handlers, say) use this to pull their payload the same way the
// built-in handshake/echo handlers do.
func (t *Transport) Reader() *codec.Reader { return t.reader }

// Log exposes the transport's logger so externally installed handlers can
// report in the same structured style as the built-in ones.
func (t *Transport) Log() *slog.Logger { return t.log }

// Conn exposes the underlying network connection, for callers that need to
// inspect socket-level state (a metrics collector reading per-connection
// TCP_INFO, say) without owning the transport's send/receive loops.
func (t *Transport) Conn() net.Conn { return t.conn }

// Verified reports whether the connection validation/authentication
// handshake has completed.
func (t *Transport) Verified() bool { return t.getState() == StateVerified }

// WaitVerified blocks until the handshake completes or the transport
// closes.
func (t *Transport) WaitVerified() {
	<-t.verified
}

func (t *Transport) markVerified() {
	t.verifiedOnce.Do(func() { close(t.verified) })
}

// OnDisconnect registers fn to run when the transport closes. Used by
// owning channels to learn about link failure.
func (t *Transport) OnDisconnect(fn func()) {
	t.disconnectMu.Lock()
	defer t.disconnectMu.Unlock()
	t.disconnectFn = append(t.disconnectFn, fn)
}

// Start launches the receive and send worker goroutines and, for the
// server role, sends the initial SET_ENDIANESS + CONNECTION_VALIDATION
// offer. It returns immediately; call Close to tear the transport down.
func (t *Transport) Start() {
	t.wg.Add(2)
	go t.sendLoop()
	go t.receiveLoop()

	if t.cfg.Role == RoleServer {
		t.EnqueueSender(NewSenderFunc(nil, func(w *codec.Writer) error {
			return t.sendServerHello(w)
		}))
	}
	go t.heartbeatLoop()
}

// EnqueueSender schedules s to run on the send worker. When the caller is
// the send worker itself (a handler completion enqueuing a reply from
// inside its own Send callback), the queue is empty, and the send buffer
// has room, s runs inline instead of round-tripping through the queue; the
// batch loop's own end-of-batch flush covers it. Every other caller queues
// normally and the next pop picks it up with no extra wakeup latency.
func (t *Transport) EnqueueSender(s Sender) {
	if t.closed.Load() {
		return
	}
	if t.inSendLoop.Load() && t.sendQ.empty() && t.writer.Remaining() > 0 {
		s.Lock()
		err := s.Send(t.writer)
		if err == nil {
			err = t.writer.EndMessage(false)
		}
		s.Unlock()
		if err != nil {
			t.log.Error("send failed", "error", err)
			t.Close(true)
		}
		return
	}
	t.sendQ.push(s)
}

func (t *Transport) sendLoop() {
	defer t.wg.Done()
	for {
		batch := t.sendQ.popBatch(pva.MaxMessageSend)
		if len(batch) == 0 {
			return
		}
		t.inSendLoop.Store(true)
		brk := false
		for _, s := range batch {
			if _, ok := s.(breakSender); ok {
				brk = true
				continue
			}
			s.Lock()
			err := s.Send(t.writer)
			if err == nil {
				err = t.writer.EndMessage(false)
			}
			s.Unlock()
			if err != nil {
				t.inSendLoop.Store(false)
				t.log.Error("send failed", "error", err)
				t.Close(true)
				return
			}
		}
		if err := t.writer.Flush(true); err != nil {
			t.inSendLoop.Store(false)
			t.log.Error("flush failed", "error", err)
			t.Close(true)
			return
		}
		t.inSendLoop.Store(false)
		if brk {
			return
		}
	}
}

func (t *Transport) receiveLoop() {
	defer t.wg.Done()
	t.setState(StateHello)
	for {
		h, err := t.reader.Next()
		if err != nil {
			if !t.closed.Load() && !errors.Is(err, io.EOF) {
				t.log.Info("receive loop ending", "error", err)
			}
			t.Close(true)
			return
		}
		t.lastRecv.Store(time.Now().UnixNano())
		t.peerProtocol.Store(uint32(h.Version))
		if err := t.dispatch(h); err != nil {
			t.log.Error("dispatch failed", "command", h.Command, "error", err)
			t.Close(true)
			return
		}
	}
}

// heartbeatLoop runs the client-side heartbeat timer: fires at half the
// connection timeout, phase-randomized into [0.5, 1.0] of that period, and
// enqueues an ECHO only when the send queue is empty. It also runs
// the RX-timeout watchdog for both roles once verified.
func (t *Transport) heartbeatLoop() {
	period := t.cfg.ConnectionTimeout / 2
	jittered := time.Duration(float64(period) * (0.5 + 0.5*rand.Float64()))
	ticker := time.NewTicker(jittered)
	defer ticker.Stop()

	for range ticker.C {
		if t.closed.Load() {
			return
		}
		if t.cfg.Role == RoleClient && t.sendQ.empty() {
			t.EnqueueSender(NewSenderFunc(nil, func(w *codec.Writer) error {
				if err := w.StartMessage(pva.CmdEcho); err != nil {
					return err
				}
				return nil
			}))
		}
		if t.getState() == StateVerified && t.peerProtocol.Load() >= 2 {
			last := time.Unix(0, t.lastRecv.Load())
			if time.Since(last) > 2*period {
				t.log.Warn("receive watchdog expired, closing transport")
				t.Close(true)
				return
			}
		}
	}
}

// Close tears the transport down. It is idempotent and safe to call from
// any goroutine. force is accepted for interface symmetry; this
// implementation always shuts the socket down rather than lingering.
func (t *Transport) Close(force bool) error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.setState(StateClosed)
	_ = force

	if tcp, ok := t.conn.(interface{ CloseWrite() error }); ok {
		_ = tcp.CloseWrite()
	}
	err := t.conn.Close()

	t.sendQ.closeQueue()

	t.Channels.DestroyAll(notifyAndDestroy)
	t.Operations.DestroyAll(notifyAndDestroy)

	t.disconnectMu.Lock()
	fns := t.disconnectFn
	t.disconnectMu.Unlock()
	for _, fn := range fns {
		fn()
	}

	t.markVerified()
	return err
}

// notifyAndDestroy is the shared teardown callback for both the channel
// and operation registries: it tells an in-flight owner its transport is
// gone, then destroys it.
func notifyAndDestroy(item any) {
	if d, ok := item.(Disconnecter); ok {
		d.Disconnect()
	}
	if d, ok := item.(Destroyer); ok {
		d.Destroy()
	}
}
