package node

import (
	"errors"
	"fmt"
	"log"
	"net"
	"time"
)

// recvTimeout bounds each blocking read. Its expiry only makes Recv
// return (nil, nil); gimbal batches are sent from the controller tick,
// not from this timeout.
const recvTimeout = 20 * time.Millisecond

// Route identifies which configured peer a received datagram came from.
type Route int

const (
	RouteUnknown Route = iota
	RouteFlyer
	RouteWinch
)

// Transport owns the single controller-bound UDP socket (spec §4.5).
type Transport struct {
	conn *net.UDPConn

	flyerAddr *net.UDPAddr
	winchAddr map[int]*net.UDPAddr // by winch id
	addrWinch map[string]int       // reverse lookup, "ip:port" -> winch id

	logger *log.Logger
}

func NewTransport(bindAddr string, flyerAddr string, winchAddrs map[int]string, logger *log.Logger) (*Transport, error) {
	laddr, err := net.ResolveUDPAddr("udp", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("node: resolve bind address: %w", err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("node: bind %s: %w", bindAddr, err)
	}

	t := &Transport{
		conn:      conn,
		winchAddr: map[int]*net.UDPAddr{},
		addrWinch: map[string]int{},
		logger:    logger,
	}

	if flyerAddr != "" {
		fa, err := net.ResolveUDPAddr("udp", flyerAddr)
		if err != nil {
			return nil, fmt.Errorf("node: resolve flyer address: %w", err)
		}
		t.flyerAddr = fa
	}
	for id, addr := range winchAddrs {
		wa, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return nil, fmt.Errorf("node: resolve winch %d address: %w", id, err)
		}
		t.winchAddr[id] = wa
		t.addrWinch[wa.String()] = id
	}

	return t, nil
}

func (t *Transport) Close() error { return t.conn.Close() }

// Datagram is one received, routed, still-opaque-past-the-type-byte
// packet.
type Datagram struct {
	Type    MessageType
	Route   Route
	WinchID int // meaningful only when Route == RouteWinch
	Payload []byte
}

// Recv blocks up to recvTimeout for one datagram. It returns (nil, nil)
// on a timeout, which the caller's receive loop skips, and a non-nil
// error only for the
// genuinely fatal case spec §7 calls out: anything other than a timeout.
func (t *Transport) Recv() (*Datagram, error) {
	buf := make([]byte, 2048)
	if err := t.conn.SetReadDeadline(time.Now().Add(recvTimeout)); err != nil {
		return nil, fmt.Errorf("node: set read deadline: %w", err)
	}

	n, raddr, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, nil
		}
		// Fatal per spec §7: "UDP recv returning anything other than
		// Ok/WouldBlock/TimedOut — process abort". The caller is
		// expected to log.Fatalf on this.
		return nil, fmt.Errorf("node: fatal recv error: %w", err)
	}
	if n < 1 {
		return nil, nil
	}

	msgType := MessageType(buf[0])
	payload := append([]byte(nil), buf[1:n]...)

	route, winchID := t.routeFor(raddr)
	if route == RouteUnknown {
		t.logger.Printf("dropping unsolicited datagram from %s", raddr)
		return nil, nil
	}

	return &Datagram{Type: msgType, Route: route, WinchID: winchID, Payload: payload}, nil
}

func (t *Transport) routeFor(addr *net.UDPAddr) (Route, int) {
	if t.flyerAddr != nil && addr.String() == t.flyerAddr.String() {
		return RouteFlyer, 0
	}
	if id, ok := t.addrWinch[addr.String()]; ok {
		return RouteWinch, id
	}
	return RouteUnknown, 0
}

func (t *Transport) send(addr *net.UDPAddr, msgType MessageType, payload []byte) error {
	buf := make([]byte, 1+len(payload))
	buf[0] = byte(msgType)
	copy(buf[1:], payload)
	_, err := t.conn.WriteToUDP(buf, addr)
	if err != nil {
		// Transient send failure, per spec §7 "Transient I/O" — ignored
		// by the caller, not fatal.
		return fmt.Errorf("node: send to %s: %w", addr, err)
	}
	return nil
}

func (t *Transport) SendWinchCommand(winchID int, payload []byte) error {
	addr, ok := t.winchAddr[winchID]
	if !ok {
		return fmt.Errorf("node: no address configured for winch %d", winchID)
	}
	return t.send(addr, MessageWinchCommand, payload)
}

// SendGimbalPacket forwards opaque gimbal sub-protocol bytes to the node
// that hosts the gimbal hardware. Gimbal packets travel over the flyer
// link when one is configured (the gimbal is mounted on the flyer);
// otherwise they fall back to the named winch node, matching spec
// §4.5's "route to a typed message" by configured address rather than by
// any field inside the gimbal payload itself.
func (t *Transport) SendGimbalPacket(winchID int, payload []byte) error {
	if t.flyerAddr != nil {
		return t.send(t.flyerAddr, MessageGimbal, payload)
	}
	addr, ok := t.winchAddr[winchID]
	if !ok {
		return fmt.Errorf("node: no address configured for winch %d", winchID)
	}
	return t.send(addr, MessageGimbal, payload)
}

func (t *Transport) SendFlyerLEDs(payload []byte) error {
	if t.flyerAddr == nil {
		return fmt.Errorf("node: no flyer address configured")
	}
	return t.send(t.flyerAddr, MessageLEDs, payload)
}

func (t *Transport) SendWinchLEDs(winchID int, payload []byte) error {
	addr, ok := t.winchAddr[winchID]
	if !ok {
		return fmt.Errorf("node: no address configured for winch %d", winchID)
	}
	return t.send(addr, MessageLEDs, payload)
}
