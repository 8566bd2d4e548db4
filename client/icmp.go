package client

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// icmpPayloadSize matches the original implementation's standard ping
// payload size.
const icmpPayloadSize = 56

// ICMP protocol numbers, per RFC 792 and RFC 4443, used to tell
// icmp.ParseMessage which message set to decode against.
const (
	protocolICMP   = 1
	protocolICMPv6 = 58
)

// IcmpProber sends unprivileged (datagram-socket) ICMP echo requests
// to a fixed set of targets. It requires the process to either run as
// root or have CAP_NET_RAW, or for the OS to allow unprivileged ICMP
// sockets (Linux: net.ipv4.ping_group_range).
type IcmpProber struct {
	targets  []net.IP
	iface    string
	connType string
	timeout  time.Duration
}

// NewIcmpProber resolves the gateway/DNS/custom targets named in cfg
// (plus any caller-supplied extras, e.g. an auto-detected gateway IP)
// into a fixed probe list.
func NewIcmpProber(cfg TargetsConfig, extraTargets []net.IP, iface, connType string) (*IcmpProber, error) {
	var targets []net.IP
	targets = append(targets, extraTargets...)

	if ip := net.ParseIP(cfg.ISPGateway); ip != nil {
		targets = append(targets, ip)
	}

	for _, dns := range cfg.PublicDNS {
		if ip := net.ParseIP(dns); ip != nil {
			targets = append(targets, ip)
			continue
		}
	}

	for _, custom := range cfg.Custom {
		if ip := net.ParseIP(custom); ip != nil {
			targets = append(targets, ip)
			continue
		}
		resolved, err := net.ResolveIPAddr("ip", custom)
		if err != nil {
			continue // unresolvable custom target: skip rather than fail the whole prober
		}
		targets = append(targets, resolved.IP)
	}

	if len(targets) == 0 {
		return nil, fmt.Errorf("client: no valid ICMP targets configured")
	}

	if iface == "" {
		iface = "default"
	}
	if connType == "" {
		connType = "unknown"
	}

	return &IcmpProber{targets: targets, iface: iface, connType: connType, timeout: 5 * time.Second}, nil
}

// RunTests pings every configured target once and returns one
// Measurement per target, in target order.
func (p *IcmpProber) RunTests() []Measurement {
	measurements := make([]Measurement, 0, len(p.targets))
	for _, target := range p.targets {
		now := time.Now()
		m := NewICMPMeasurement(target.String(), p.iface, p.connType, now.Unix(), now.UnixNano())

		rtt, err := p.ping(target)
		switch {
		case err == nil:
			m.SetSuccess(rtt)
		case isTimeout(err):
			m.SetTimeout()
		default:
			m.SetError(err.Error())
		}
		measurements = append(measurements, m)
	}
	return measurements
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// ping sends one ICMP echo and returns the measured RTT in milliseconds.
// It dials an ICMPv6 socket for IPv6 targets and an ICMPv4 socket
// otherwise; a target is only IPv6 when it has no 4-in-6 form
// (net.IP.To4 returns non-nil for both pure IPv4 and 4-in-6 addresses).
func (p *IcmpProber) ping(target net.IP) (float64, error) {
	if target.To4() == nil {
		return p.ping6(target)
	}
	return p.ping4(target)
}

func (p *IcmpProber) ping4(target net.IP) (float64, error) {
	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err != nil {
		return 0, fmt.Errorf("opening ICMPv4 socket (CAP_NET_RAW or ping_group_range required): %w", err)
	}
	defer conn.Close()

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{
			ID:   int(time.Now().UnixNano() & 0xffff),
			Seq:  1,
			Data: make([]byte, icmpPayloadSize),
		},
	}
	wire, err := msg.Marshal(nil)
	if err != nil {
		return 0, fmt.Errorf("marshaling ICMPv4 echo: %w", err)
	}

	rtt, reply, err := p.roundTrip(conn, wire, &net.UDPAddr{IP: target})
	if err != nil {
		return 0, err
	}

	parsed, err := icmp.ParseMessage(protocolICMP, reply)
	if err != nil {
		return 0, fmt.Errorf("parsing ICMPv4 reply: %w", err)
	}
	if parsed.Type != ipv4.ICMPTypeEchoReply {
		return 0, fmt.Errorf("unexpected ICMPv4 reply type: %v", parsed.Type)
	}
	return rtt, nil
}

func (p *IcmpProber) ping6(target net.IP) (float64, error) {
	conn, err := icmp.ListenPacket("udp6", "::")
	if err != nil {
		return 0, fmt.Errorf("opening ICMPv6 socket (CAP_NET_RAW or ping_group_range required): %w", err)
	}
	defer conn.Close()

	msg := icmp.Message{
		Type: ipv6.ICMPTypeEchoRequest,
		Code: 0,
		Body: &icmp.Echo{
			ID:   int(time.Now().UnixNano() & 0xffff),
			Seq:  1,
			Data: make([]byte, icmpPayloadSize),
		},
	}
	wire, err := msg.Marshal(nil)
	if err != nil {
		return 0, fmt.Errorf("marshaling ICMPv6 echo: %w", err)
	}

	rtt, reply, err := p.roundTrip(conn, wire, &net.UDPAddr{IP: target})
	if err != nil {
		return 0, err
	}

	parsed, err := icmp.ParseMessage(protocolICMPv6, reply)
	if err != nil {
		return 0, fmt.Errorf("parsing ICMPv6 reply: %w", err)
	}
	if parsed.Type != ipv6.ICMPTypeEchoReply {
		return 0, fmt.Errorf("unexpected ICMPv6 reply type: %v", parsed.Type)
	}
	return rtt, nil
}

// roundTrip writes wire to addr over conn and reads back one reply,
// returning the RTT in milliseconds and the raw reply bytes.
func (p *IcmpProber) roundTrip(conn *icmp.PacketConn, wire []byte, addr net.Addr) (float64, []byte, error) {
	start := time.Now()
	if err := conn.SetDeadline(start.Add(p.timeout)); err != nil {
		return 0, nil, err
	}
	if _, err := conn.WriteTo(wire, addr); err != nil {
		return 0, nil, fmt.Errorf("sending ICMP echo: %w", err)
	}

	buf := make([]byte, 1500)
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		return 0, nil, err
	}
	rtt := time.Since(start)
	return rtt.Seconds() * 1000.0, buf[:n], nil
}
