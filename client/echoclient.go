package client

import (
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"github.com/schuellerf/bufferbane/protocol"
)

// EchoClient owns one UDP socket dedicated to a single bufferbane
// server: it authenticates via KNOCK, then drives repeated ECHO
// round trips, feeding each into a TimeSync estimator and producing a
// Measurement per call to RunTest.
type EchoClient struct {
	cfg      *ServerConfig
	key      [protocol.SecretSize]byte
	conn     *net.UDPConn
	addr     *net.UDPAddr
	clientID uint64
	sessionID uint64
	authed   bool
	sequence uint32
	sync     *TimeSync
	iface    string
	connType string
	log      zerolog.Logger
}

// NewEchoClient resolves the server address, binds an ephemeral local
// socket, and validates the configured shared secret. It does not
// authenticate yet — call Authenticate or RunTest for that.
func NewEchoClient(cfg *ServerConfig, clientID uint64, iface, connType string, log zerolog.Logger) (*EchoClient, error) {
	key, err := protocol.ParseSharedSecret(cfg.SharedSecret)
	if err != nil {
		return nil, fmt.Errorf("client: invalid shared secret: %w", err)
	}

	addr, err := net.ResolveUDPAddr("udp", cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("client: resolving server address %q: %w", cfg.Addr(), err)
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("client: binding local socket: %w", err)
	}
	if err := conn.SetReadBuffer(64 * 1024); err != nil {
		log.Debug().Err(err).Msg("SetReadBuffer failed, continuing with default")
	}

	return &EchoClient{
		cfg:      cfg,
		key:      key,
		conn:     conn,
		addr:     addr,
		clientID: clientID,
		iface:    iface,
		connType: connType,
		sync:     NewTimeSync(),
		log:      log,
	}, nil
}

// Close releases the underlying socket.
func (c *EchoClient) Close() error {
	return c.conn.Close()
}

// Authenticate performs the KNOCK/KNOCK_ACK exchange, retrying up to
// cfg.KnockRetryAttempts times with a fixed gap between attempts.
// A new session resets the time-sync estimator: offsets from a prior
// session are meaningless once the server has minted a new session_id.
func (c *EchoClient) Authenticate() error {
	var lastErr error
	attempts := c.cfg.KnockRetryAttempts
	if attempts == 0 {
		attempts = defaultKnockRetryAttempts
	}

	for attempt := uint32(1); attempt <= attempts; attempt++ {
		sessionID, err := c.sendKnock()
		if err == nil {
			c.sessionID = sessionID
			c.authed = true
			c.sync = NewTimeSync()
			c.log.Info().
				Str("server", c.cfg.Host).
				Uint64("session_id", sessionID).
				Msg("authenticated")
			return nil
		}
		lastErr = err
		c.log.Warn().Err(err).Uint32("attempt", attempt).Msg("knock failed")
		if attempt < attempts {
			time.Sleep(protocol.KnockRetryGap)
		}
	}
	return fmt.Errorf("client: authentication failed after %d attempts: %w", attempts, lastErr)
}

func (c *EchoClient) sendKnock() (uint64, error) {
	knock, err := protocol.NewKnock()
	if err != nil {
		return 0, fmt.Errorf("generating KNOCK challenge: %w", err)
	}
	datagram, err := protocol.Encode(protocol.PacketKnock, c.clientID, knock.Encode(), c.key)
	if err != nil {
		return 0, fmt.Errorf("encoding KNOCK: %w", err)
	}

	timeout := c.cfg.KnockTimeout()
	if timeout == 0 {
		timeout = protocol.DefaultKnockTimeout
	}
	if err := c.conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}
	if _, err := c.conn.Write(datagram); err != nil {
		return 0, fmt.Errorf("sending KNOCK: %w", err)
	}

	buf := make([]byte, 4096)
	n, err := c.conn.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("receiving KNOCK_ACK: %w", err)
	}

	header, plaintext, err := protocol.Decode(buf[:n], c.key)
	if err != nil {
		return 0, fmt.Errorf("decoding KNOCK_ACK: %w", err)
	}
	if header.PacketType != protocol.PacketKnockAck {
		return 0, fmt.Errorf("expected KNOCK_ACK, got %s", header.PacketType)
	}

	ack, err := protocol.DecodeKnockAck(plaintext)
	if err != nil {
		return 0, fmt.Errorf("parsing KNOCK_ACK payload: %w", err)
	}
	return ack.SessionID, nil
}

// RunTest performs one ECHO round trip, updates the time-sync
// estimator, and returns the resulting Measurement. It authenticates
// first if no session is established yet.
func (c *EchoClient) RunTest() Measurement {
	if !c.cfg.EnableEchoTest {
		return Measurement{}
	}

	if !c.authed {
		if err := c.Authenticate(); err != nil {
			m := NewServerEchoMeasurement(c.cfg.Host, c.iface, c.connType, time.Now().Unix(), 0)
			m.SetError(err.Error())
			return m
		}
	}

	c.sequence++
	start := time.Now()
	t1 := uint64(start.Sub(c.sync.SessionStart()).Nanoseconds())

	m := NewServerEchoMeasurement(c.cfg.Host, c.iface, c.connType, start.Unix(), int64(t1))
	m.ServerName = c.cfg.Host

	reply, err := c.sendEchoRequest(t1)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			m.SetTimeout()
		} else {
			m.SetError(err.Error())
		}
		return m
	}
	end := time.Now()

	// The wall timestamp is rebuilt from the session's start wall time
	// plus the monotonic time elapsed until receipt, so wall-clock steps
	// during a session never show up between measurements.
	m.TimestampUnix = c.sync.sessionStartWall.Add(end.Sub(c.sync.SessionStart())).Unix()

	rttNs := float64(end.Sub(start).Nanoseconds())
	t4 := uint64(end.Sub(c.sync.SessionStart()).Nanoseconds())

	t1Echo := reply.T1
	t2 := reply.T2
	t3 := reply.T3

	event, _ := c.sync.Update(t1Echo, t2, t3, t4, rttNs)

	// Validate runs regardless of whether this round trip's own sample
	// was admitted into the ring buffer: it checks the *settled*
	// best_offset_ns, which can go stale even when every individual
	// sample looks admissible on its own.
	invalidEvent, valid := c.sync.Validate(t1Echo, t2, t3, t4, rttNs)

	m.RTTMillis = f64ptr(rttNs / 1e6)
	m.PacketLossPct = f64ptr(0)
	m.Status = "success"

	if valid {
		uploadNs := (float64(t2) - float64(t1Echo)) - c.sync.BestOffsetNs()
		downloadNs := (float64(t4) - float64(t3)) + c.sync.BestOffsetNs()
		processingUs := int64((float64(t3) - float64(t2)) / 1e3)

		m.UploadLatencyMillis = f64ptr(uploadNs / 1e6)
		m.DownloadLatencyMillis = f64ptr(downloadNs / 1e6)
		m.ServerProcessingUs = i64ptr(processingUs)
	}

	switch {
	case invalidEvent != nil:
		m.SyncEvent = invalidEvent
	case event != nil:
		m.SyncEvent = event
	}

	return m
}

func (c *EchoClient) sendEchoRequest(t1 uint64) (protocol.EchoReply, error) {
	req := protocol.EchoRequest{Sequence: c.sequence, ClientTimestamp: t1}
	datagram, err := protocol.Encode(protocol.PacketEchoRequest, c.clientID, req.Encode(), c.key)
	if err != nil {
		return protocol.EchoReply{}, fmt.Errorf("encoding ECHO_REQUEST: %w", err)
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(protocol.WriteTimeout)); err != nil {
		return protocol.EchoReply{}, err
	}
	if _, err := c.conn.Write(datagram); err != nil {
		return protocol.EchoReply{}, fmt.Errorf("sending ECHO_REQUEST: %w", err)
	}

	timeout := c.cfg.KnockTimeout()
	if timeout == 0 {
		timeout = protocol.DefaultKnockTimeout
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return protocol.EchoReply{}, err
	}

	buf := make([]byte, 4096)
	n, err := c.conn.Read(buf)
	if err != nil {
		return protocol.EchoReply{}, err
	}

	header, plaintext, err := protocol.Decode(buf[:n], c.key)
	if err != nil {
		return protocol.EchoReply{}, fmt.Errorf("decoding ECHO_REPLY: %w", err)
	}
	if header.PacketType != protocol.PacketEchoReply {
		return protocol.EchoReply{}, fmt.Errorf("expected ECHO_REPLY, got %s", header.PacketType)
	}

	return protocol.DecodeEchoReply(plaintext)
}
