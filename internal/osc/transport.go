package osc

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sound2osc/engine/internal/diagnostics"
	"github.com/sound2osc/engine/internal/util"
)

// SendQueueCapacity is the bounded send queue depth shared by both
// transports (spec §4.8: "Both transports share a bounded send queue of
// 256 messages").
const SendQueueCapacity = 256

// tcpDialTimeout bounds a lazy TCP connect attempt.
const tcpDialTimeout = 2 * time.Second

// tcpWriteTimeout bounds a single TCP write (spec §5: "a TCP send may
// await socket writability subject to a 200 ms timeout").
const tcpWriteTimeout = 200 * time.Millisecond

// tcpReconnectInitial/tcpReconnectMax bound the TCP reconnect backoff
// (spec §4.8: "re-established automatically up to once every 2 s").
const (
	tcpReconnectInitial = 2 * time.Second
	tcpReconnectMax     = 2 * time.Second
)

// Transport sends already-encoded OSC packets (a Message or Bundle
// Encode() result). Send never blocks the caller.
type Transport interface {
	Send(packet []byte)
	Close() error
}

func emitDiagnostic(sink diagnostics.Sink, level diagnostics.Level, code diagnostics.Code, msg string) {
	if sink != nil {
		sink.Emit(diagnostics.New(level, code, msg))
	}
}

// trySendDropOldest enqueues packet, dropping the oldest queued packet
// first if the queue is full. Reports whether a drop occurred.
func trySendDropOldest(queue chan []byte, packet []byte) bool {
	select {
	case queue <- packet:
		return false
	default:
	}
	select {
	case <-queue:
	default:
	}
	select {
	case queue <- packet:
	default:
	}
	return true
}

// overflowGate throttles TransportOverflow reporting to a single
// diagnostic per overflow episode (spec §7 TransportOverflow: "drop
// oldest; emit a single throttled diagnostic"), shared by both
// transports so the throttle behaves identically for each.
type overflowGate struct {
	mu     sync.Mutex
	active bool
}

// note records whether the most recent send dropped a packet and reports
// whether this call should emit a diagnostic (true only on the episode's
// first dropped send; suppressed for the rest of the episode until a
// non-dropping send resets it).
func (g *overflowGate) note(dropped bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !dropped {
		g.active = false
		return false
	}
	if g.active {
		return false
	}
	g.active = true
	return true
}

// UDPTransport sends packets over UDP: best-effort, no retry on failure.
type UDPTransport struct {
	conn       *net.UDPConn
	queue      chan []byte
	diagnostic diagnostics.Sink

	overflow overflowGate

	done chan struct{}
	wg   sync.WaitGroup
}

// NewUDPTransport dials addr (e.g. "127.0.0.1:9000") over UDP and starts
// its send loop.
func NewUDPTransport(addr string, sink diagnostics.Sink) (*UDPTransport, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve udp address %q: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial udp %q: %w", addr, err)
	}

	t := &UDPTransport{
		conn:       conn,
		queue:      make(chan []byte, SendQueueCapacity),
		diagnostic: sink,
		done:       make(chan struct{}),
	}
	t.wg.Add(1)
	go t.run()
	return t, nil
}

// Send implements Transport.
func (t *UDPTransport) Send(packet []byte) {
	dropped := trySendDropOldest(t.queue, packet)
	if t.overflow.note(dropped) {
		emitDiagnostic(t.diagnostic, diagnostics.LevelWarn, diagnostics.CodeTransportOverflow, "udp send queue overflowed, dropping oldest")
	}
}

func (t *UDPTransport) run() {
	defer t.wg.Done()
	for {
		select {
		case pkt := <-t.queue:
			t.write(pkt)
		case <-t.done:
			t.drain()
			return
		}
	}
}

func (t *UDPTransport) drain() {
	for {
		select {
		case pkt := <-t.queue:
			t.write(pkt)
		default:
			return
		}
	}
}

func (t *UDPTransport) write(pkt []byte) {
	if _, err := t.conn.Write(pkt); err != nil {
		emitDiagnostic(t.diagnostic, diagnostics.LevelWarn, diagnostics.CodeTransportTransient, fmt.Sprintf("udp send failed: %v", err))
	}
}

// Close stops the send loop after draining whatever is already queued,
// then closes the socket.
func (t *UDPTransport) Close() error {
	close(t.done)
	t.wg.Wait()
	return t.conn.Close()
}

// TCPTransport sends SLIP-framed packets over TCP, connecting lazily on
// first send and reconnecting with backoff on failure.
type TCPTransport struct {
	addr       string
	diagnostic diagnostics.Sink

	queue    chan []byte
	overflow overflowGate
	done     chan struct{}
	wg       sync.WaitGroup

	conn        net.Conn
	backoff     *util.Backoff
	nextAttempt time.Time
}

// NewTCPTransport prepares a TCP transport for addr. No connection is
// made until the first Send.
func NewTCPTransport(addr string, sink diagnostics.Sink) *TCPTransport {
	t := &TCPTransport{
		addr:       addr,
		diagnostic: sink,
		queue:      make(chan []byte, SendQueueCapacity),
		done:       make(chan struct{}),
		backoff:    util.NewBackoff(tcpReconnectInitial, tcpReconnectMax),
	}
	t.wg.Add(1)
	go t.run()
	return t
}

// Send implements Transport. Overflow throttling matches UDPTransport
// (shared via overflowGate): at most one diagnostic per overflow episode.
func (t *TCPTransport) Send(packet []byte) {
	dropped := trySendDropOldest(t.queue, packet)
	if t.overflow.note(dropped) {
		emitDiagnostic(t.diagnostic, diagnostics.LevelWarn, diagnostics.CodeTransportOverflow, "tcp send queue overflowed, dropping oldest")
	}
}

func (t *TCPTransport) run() {
	defer t.wg.Done()
	for {
		select {
		case pkt := <-t.queue:
			t.sendOne(pkt)
		case <-t.done:
			t.drain()
			if t.conn != nil {
				_ = t.conn.Close()
			}
			return
		}
	}
}

func (t *TCPTransport) drain() {
	for {
		select {
		case pkt := <-t.queue:
			t.sendOne(pkt)
		default:
			return
		}
	}
}

func (t *TCPTransport) sendOne(pkt []byte) {
	if err := t.ensureConnected(); err != nil {
		emitDiagnostic(t.diagnostic, diagnostics.LevelWarn, diagnostics.CodeTransportTransient, fmt.Sprintf("tcp connect failed: %v", err))
		return
	}

	framed := SlipEncode(pkt)
	_ = t.conn.SetWriteDeadline(time.Now().Add(tcpWriteTimeout))
	if _, err := t.conn.Write(framed); err != nil {
		emitDiagnostic(t.diagnostic, diagnostics.LevelWarn, diagnostics.CodeTransportTransient, fmt.Sprintf("tcp send failed: %v", err))
		_ = t.conn.Close()
		t.conn = nil
		return
	}
	t.backoff.Reset()
}

func (t *TCPTransport) ensureConnected() error {
	if t.conn != nil {
		return nil
	}
	now := time.Now()
	if now.Before(t.nextAttempt) {
		return fmt.Errorf("reconnect backoff active until %s", t.nextAttempt.Format(time.RFC3339))
	}

	conn, err := net.DialTimeout("tcp", t.addr, tcpDialTimeout)
	if err != nil {
		t.nextAttempt = now.Add(t.backoff.Next())
		return err
	}
	t.conn = conn
	return nil
}

// Close stops the send loop after draining whatever is already queued,
// then closes the connection if one is open.
func (t *TCPTransport) Close() error {
	close(t.done)
	t.wg.Wait()
	return nil
}
