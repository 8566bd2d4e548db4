package client

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/schuellerf/bufferbane/protocol"
	"github.com/schuellerf/bufferbane/server"
)

const testSecretHexForEcho = "cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"

func startTestServer(t *testing.T) *server.Dispatcher {
	t.Helper()
	key, err := protocol.ParseSharedSecret(testSecretHexForEcho)
	if err != nil {
		t.Fatalf("ParseSharedSecret: %v", err)
	}
	sessions := server.NewSessionManager(time.Minute)
	d, err := server.NewDispatcher("127.0.0.1:0", key, sessions, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	go d.Run()
	t.Cleanup(func() { d.Close() })
	return d
}

func serverConfigFor(t *testing.T, d *server.Dispatcher) *ServerConfig {
	t.Helper()
	host, portStr, err := net.SplitHostPort(d.LocalAddr().String())
	if err != nil {
		t.Fatalf("splitting addr %q: %v", d.LocalAddr().String(), err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parsing port %q: %v", portStr, err)
	}
	return &ServerConfig{
		Enabled:            true,
		Host:               host,
		Port:               uint16(port),
		SharedSecret:       testSecretHexForEcho,
		KnockRetryAttempts: 3,
		KnockTimeoutMs:     500,
		EnableEchoTest:     true,
	}
}

func TestEchoClientAuthenticatesAndRunsTest(t *testing.T) {
	d := startTestServer(t)
	cfg := serverConfigFor(t, d)

	c, err := NewEchoClient(cfg, 0xABCD, "eth0", "wired", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEchoClient: %v", err)
	}
	defer c.Close()

	if err := c.Authenticate(); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if c.sessionID == 0 {
		t.Fatal("expected non-zero session id after authentication")
	}

	m := c.RunTest()
	if m.Status != "success" {
		t.Fatalf("Status = %q, want success, error=%q", m.Status, m.ErrorDetail)
	}
	if m.RTTMillis == nil {
		t.Fatal("expected RTT to be recorded")
	}
	if m.TestType != "server_echo" {
		t.Fatalf("TestType = %q, want server_echo", m.TestType)
	}
}

func TestEchoClientAccumulatesSyncOverManyTests(t *testing.T) {
	d := startTestServer(t)
	cfg := serverConfigFor(t, d)

	c, err := NewEchoClient(cfg, 0xBEEF, "eth0", "wired", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewEchoClient: %v", err)
	}
	defer c.Close()

	var lastMeasurement Measurement
	for i := 0; i < minSamplesForSync+4; i++ {
		lastMeasurement = c.RunTest()
		if lastMeasurement.Status != "success" {
			t.Fatalf("RunTest[%d].Status = %q, error=%q", i, lastMeasurement.Status, lastMeasurement.ErrorDetail)
		}
	}

	if !c.sync.IsSynced() {
		t.Fatalf("expected sync after %d round trips against loopback, quality=%d", minSamplesForSync+4, c.sync.Quality())
	}
	if lastMeasurement.UploadLatencyMillis == nil || lastMeasurement.DownloadLatencyMillis == nil {
		t.Fatal("expected upload/download latency once synced")
	}
}
