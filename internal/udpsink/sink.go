// Package udpsink implements the external-media drain: a UDP listener
// that receives and discards RTP-framed audio streamed by Asterisk's
// externalMedia channels. No RTP decoding, no persistence.
package udpsink

import (
	"net"
	"sync/atomic"

	log15 "github.com/inconshreveable/log15"
)

const addr = "127.0.0.1:55444"

// Sink is a receive-and-discard UDP listener.
type Sink struct {
	conn    *net.UDPConn
	closed  atomic.Bool
	log     log15.Logger
	packets atomic.Int64
}

// Start binds the sink's UDP socket and begins discarding datagrams on
// a background goroutine.
func Start(log log15.Logger) (*Sink, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, err
	}

	s := &Sink{conn: conn, log: log}
	go s.run()
	return s, nil
}

func (s *Sink) run() {
	buf := make([]byte, 2048)
	for {
		_, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if s.closed.Load() {
				return
			}
			s.log.Debug("udp sink read error", "err", err)
			continue
		}
		s.packets.Add(1)
	}
}

// Packets returns the number of datagrams discarded so far.
func (s *Sink) Packets() int64 { return s.packets.Load() }

// Close shuts the sink down. Safe to call more than once.
func (s *Sink) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.conn.Close()
}
