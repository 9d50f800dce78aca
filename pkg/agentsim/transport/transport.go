// Package transport owns the UDP listener(s), the bounded worker pool that
// runs each datagram through the Protocol Engine, and the send scheduler
// that realizes configured delay by reordering responses on send_at_time
// rather than receive order.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"runtime"
	"sync"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/mocksnmp/agentsim/models"
	"github.com/mocksnmp/agentsim/pkg/agentsim/engine"
	"github.com/mocksnmp/agentsim/pkg/agentsim/usm"
	"github.com/mocksnmp/agentsim/pkg/agentsim/wire"
)

// Config controls one Transport listener.
type Config struct {
	Addr             string // host:port to bind
	Workers          int    // default = 2 * runtime.NumCPU
	PDUMaxBytes      int
	PerRequestBudget time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2 * runtime.NumCPU()
	}
	if c.PDUMaxBytes <= 0 {
		c.PDUMaxBytes = 1472
	}
	if c.PerRequestBudget <= 0 {
		c.PerRequestBudget = 2 * time.Second
	}
	return c
}

// Transport binds a UDP socket, dispatches datagrams to the Protocol
// Engine through a bounded worker pool, and schedules responses by
// send_at_time. Its start/stop/running-flag lifecycle and restart
// simulation are grounded on the adapted trap receiver, generalized from
// "stop once" to "quiesce and rebind".
type Transport struct {
	cfg    Config
	logger *slog.Logger

	engine     *engine.Engine
	users      *usm.Users
	selfEngine *usm.Engine

	pool  *workerPool
	sched *sendScheduler

	mu      sync.Mutex
	running bool
	conn    *net.UDPConn
	stopCh  chan struct{}
	readWg  sync.WaitGroup
	schedWg sync.WaitGroup
}

// New builds a Transport. It does not bind a socket until Start is called.
func New(cfg Config, eng *engine.Engine, users *usm.Users, selfEngine *usm.Engine, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	t := &Transport{
		cfg:        cfg.withDefaults(),
		logger:     logger,
		engine:     eng,
		users:      users,
		selfEngine: selfEngine,
	}
	t.pool = newWorkerPool(t.cfg.Workers, t.handle)
	t.sched = newSendScheduler(t.write)
	return t
}

// Start binds the UDP socket and launches the worker pool, the send
// scheduler, and the read loop. It blocks until the socket is bound.
func (t *Transport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return fmt.Errorf("transport: already running")
	}

	addr, err := net.ResolveUDPAddr("udp", t.cfg.Addr)
	if err != nil {
		t.mu.Unlock()
		return fmt.Errorf("transport: resolve %s: %w", t.cfg.Addr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		t.mu.Unlock()
		return fmt.Errorf("transport: listen %s: %w", t.cfg.Addr, err)
	}
	t.conn = conn
	t.running = true
	t.stopCh = make(chan struct{})
	stop := t.stopCh
	t.mu.Unlock()

	t.pool.Start(ctx)
	t.schedWg.Add(1)
	go func() { defer t.schedWg.Done(); t.sched.Run(stop) }()

	t.readWg.Add(1)
	go t.readLoop(conn)

	t.logger.Info("transport: listening", "addr", conn.LocalAddr())
	return nil
}

// Stop closes the socket and waits for the read loop, worker pool, and send
// scheduler to drain.
func (t *Transport) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.stopCh)
	conn := t.conn
	t.mu.Unlock()

	conn.Close()
	t.readWg.Wait()
	t.pool.Stop()
	t.schedWg.Wait()
}

// Quiesce simulates a restart: it stops reading from the socket, closes it
// for downtime, then rebinds to the same address. Pending sends whose
// send_at_time falls at or after the quiesce instant are cancelled — no
// in-flight response survives a restart. The simulator's engineBoots is
// bumped so v3 clients must rediscover.
func (t *Transport) Quiesce(downtime time.Duration) error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return fmt.Errorf("transport: not running")
	}
	close(t.stopCh)
	conn := t.conn
	t.mu.Unlock()

	cutoff := time.Now()
	conn.Close()
	t.readWg.Wait()
	t.schedWg.Wait()
	t.sched.CancelAfter(cutoff)
	t.selfEngine.Restart()

	t.logger.Info("transport: quiesced", "downtime", downtime)
	time.Sleep(downtime)

	addr, err := net.ResolveUDPAddr("udp", t.cfg.Addr)
	if err != nil {
		return fmt.Errorf("transport: resolve %s: %w", t.cfg.Addr, err)
	}
	newConn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("transport: rebind %s: %w", t.cfg.Addr, err)
	}

	t.mu.Lock()
	t.conn = newConn
	t.stopCh = make(chan struct{})
	stop := t.stopCh
	t.mu.Unlock()

	t.schedWg.Add(1)
	go func() { defer t.schedWg.Done(); t.sched.Run(stop) }()
	t.readWg.Add(1)
	go t.readLoop(newConn)

	t.logger.Info("transport: rebound", "addr", newConn.LocalAddr())
	return nil
}

// LocalAddr returns the address the currently-bound socket is listening on,
// primarily useful in tests that bind to ":0" and need the chosen port.
func (t *Transport) LocalAddr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

func (t *Transport) readLoop(conn *net.UDPConn) {
	defer t.readWg.Done()
	buf := make([]byte, 65535)
	for {
		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		t.pool.Submit(datagramJob{data: data, remote: remote, recvTime: time.Now()})
	}
}

func (t *Transport) write(remote *net.UDPAddr, data []byte) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return
	}
	if _, err := conn.WriteToUDP(data, remote); err != nil {
		t.logger.Warn("transport: write failed", "remote", remote, "error", err)
	}
}

// handle runs one datagram end-to-end: decode, USM (if v3), Protocol
// Engine, encode, schedule. It is the function submitted as each worker's
// job handler.
func (t *Transport) handle(job datagramJob) {
	version, err := wire.PeekVersion(job.data)
	if err != nil {
		return // decode failure: silent discard, per the Protocol Engine's failure semantics
	}

	var req *models.RequestContext
	var v3 *securityOutcome

	switch version {
	case gosnmp.Version1, gosnmp.Version2c:
		msg, err := wire.DecodeMessage(job.data)
		if err != nil {
			return
		}
		req = requestFromV1V2c(msg)

	case gosnmp.Version3:
		env, err := wire.ParseV3Envelope(job.data)
		if err != nil {
			return
		}
		out := authenticateAndDecrypt(job.data, env, t.users, t.selfEngine)
		if out.discard {
			return
		}
		if out.report {
			t.respondV3Report(job, out)
			return
		}
		req = requestFromV3(out)
		v3 = &out

	default:
		return
	}

	req.RecvTime = job.recvTime
	req.RemoteAddr = job.remote

	outcome := t.engine.Process(req)
	if outcome.Drop {
		return
	}

	delay := time.Duration(req.Derived.DelayBudgetMS)*time.Millisecond + req.Derived.SubsystemLatency
	sendAt := job.recvTime.Add(delay)
	if sendAt.Sub(job.recvTime) > t.cfg.PerRequestBudget {
		return
	}

	var payload []byte
	if req.Version == gosnmp.Version3 {
		pduKind := models.PDUResponse
		if outcome.Report {
			pduKind = models.PDUReport
		}
		tag, _ := wire.PDUTag(pduKind)
		ctxEngineID := t.selfEngine.ID()
		ctxName := ""
		var session *models.USMSession
		if v3 != nil {
			ctxName = v3.contextName
			session = v3.session
		}
		payload, err = encodeV3Response(v3envelopeOrZero(v3), session, t.selfEngine, ctxEngineID, ctxName, tag, req.RequestID, int(outcome.ErrorStatus), outcome.ErrorIndex, outcome.Varbinds)
	} else {
		payload, err = wire.EncodeResponsePDU(req.Version, req.Community, req.RequestID, int(outcome.ErrorStatus), outcome.ErrorIndex, outcome.Varbinds)
	}
	if err != nil {
		t.logger.Error("transport: encode failed", "error", err)
		return
	}

	t.sched.Enqueue(sendAt, job.remote, payload)
}

// respondV3Report answers a discovery probe, unknown-user, auth-failure,
// or time-window failure with a Report PDU. Discovery and unknown-user
// reports are unauthenticated; time-window failures are authenticated
// (the user and key are known, only the clock was out of sync) when a
// session was resolved.
func (t *Transport) respondV3Report(job datagramJob, out securityOutcome) {
	env := out.envelope
	tag, _ := wire.PDUTag(models.PDUReport)
	var session *models.USMSession
	if env.Flags&flagAuth != 0 {
		session = out.session
	}
	payload, err := encodeV3Response(env, session, t.selfEngine, t.selfEngine.ID(), "", tag, env.MsgID, 0, 0, nil)
	if err != nil {
		t.logger.Error("transport: encode v3 report failed", "error", err)
		return
	}
	t.sched.Enqueue(job.recvTime, job.remote, payload)
}

func v3envelopeOrZero(out *securityOutcome) wire.V3ParsedEnvelope {
	if out == nil {
		return wire.V3ParsedEnvelope{}
	}
	return out.envelope
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
