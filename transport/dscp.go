package transport

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
)

// DiffServ code points for audio traffic. CS5 is the conventional marking
// for media streams on managed networks; EF is the low-latency forwarding
// class.
const (
	DSCPCS5 = 40
	DSCPEF  = 46
)

const dscpMask = 0x3F

// MarkPacketConn applies a DSCP marking to a bound UDP socket. The TOS byte
// carries the code point in its upper six bits.
func MarkPacketConn(conn net.PacketConn, dscp int) error {
	if dscp < 0 || dscp > dscpMask {
		return fmt.Errorf("dscp %d out of range", dscp)
	}
	udpConn, ok := conn.(*net.UDPConn)
	if !ok {
		return fmt.Errorf("dscp marking needs a UDP socket, have %T", conn)
	}
	return ipv4.NewPacketConn(udpConn).SetTOS(dscp << 2)
}

// MarkConn applies a DSCP marking to a connected UDP socket, as used by the
// sender tool.
func MarkConn(conn net.Conn, dscp int) error {
	if dscp < 0 || dscp > dscpMask {
		return fmt.Errorf("dscp %d out of range", dscp)
	}
	return ipv4.NewConn(conn).SetTOS(dscp << 2)
}
