package ari

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gobwas/ws"
	log15 "github.com/inconshreveable/log15"
)

const (
	wsRetryTimeout = time.Second
	wsMaxRetries   = 10
	wsBackoff      = 5 * time.Second
)

// eventPump owns the ARI events WebSocket connection: dialing, the
// eventFilter negotiation on open, reconnection with backoff, and
// decoding frames into raw maps for the parsers table. Mirrors the reconnect
// loop of the original client (RETRY_TIMEOUT=1, MAX_RETRIES=10) while
// using gobwas/ws for the frame-level protocol instead of a full
// net/http-based client.
type eventPump struct {
	host, port, user, password, app string
	tls                             bool
	client                          *Client
	log                             log15.Logger

	mu     sync.Mutex
	conn   net.Conn
	closed chan struct{}
}

func newEventPump(client *Client, host, port, user, password, app string, useTLS bool, log log15.Logger) *eventPump {
	return &eventPump{
		host: host, port: port, user: user, password: password, app: app,
		tls: useTLS, client: client, log: log,
		closed: make(chan struct{}),
	}
}

func (p *eventPump) wsURL() string {
	scheme := "ws"
	if p.tls {
		scheme = "wss"
	}
	q := url.Values{"app": {p.app}}
	return fmt.Sprintf("%s://%s:%s/ari/events?%s", scheme, p.host, p.port, q.Encode())
}

func (p *eventPump) authHeaderValue() string {
	token := base64.StdEncoding.EncodeToString([]byte(p.user + ":" + p.password))
	return "Basic " + token
}

func (p *eventPump) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

// close stops the pump. It also closes the in-flight connection, if
// any, so a blocked read unblocks immediately instead of waiting for
// the next idle check.
func (p *eventPump) close() {
	select {
	case <-p.closed:
	default:
		close(p.closed)
	}
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (p *eventPump) setConn(conn net.Conn) {
	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
}

// run dials and redials the events socket until closed, matching spec
// §4.D's reconnect behavior: quick retries up to wsMaxRetries, then a
// longer backoff between subsequent attempts.
func (p *eventPump) run(ctx context.Context) {
	attempt := 0
	for !p.isClosed() {
		if err := p.connectOnce(ctx); err != nil && !p.isClosed() {
			attempt++
			wait := wsRetryTimeout
			if attempt > wsMaxRetries {
				wait = wsBackoff
			}
			p.log.Error("event socket disconnected, retrying", "attempt", attempt, "wait", wait, "err", err)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
			continue
		}
		attempt = 0
	}
}

func (p *eventPump) connectOnce(ctx context.Context) error {
	dialer := ws.Dialer{
		Timeout: 10 * time.Second,
		Header:  ws.HandshakeHeaderHTTP(http.Header{"Authorization": []string{p.authHeaderValue()}}),
	}
	if p.tls {
		dialer.TLSConfig = &tls.Config{}
	}

	conn, _, _, err := dialer.Dial(ctx, p.wsURL())
	if err != nil {
		return err
	}
	p.setConn(conn)
	defer func() {
		p.setConn(nil)
		conn.Close()
	}()
	// Canceling ctx closes the connection so a blocked read returns.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	p.log.Info("event socket connected", "app", p.app)

	if err := p.client.filterEvents(p.client.cb.allowedSnapshot()); err != nil {
		p.log.Warn("event filter negotiation failed", "err", err)
	}

	for {
		if p.isClosed() {
			return nil
		}
		msg, _, err := readClientMessage(conn)
		if err != nil {
			if p.isClosed() {
				return nil
			}
			return err
		}
		p.handleFrame(msg)
	}
}

func readClientMessage(conn net.Conn) ([]byte, ws.OpCode, error) {
	header, err := ws.ReadHeader(conn)
	if err != nil {
		return nil, 0, err
	}
	payload := make([]byte, header.Length)
	if _, err := readFull(conn, payload); err != nil {
		return nil, 0, err
	}
	if header.Masked {
		ws.Cipher(payload, header.Mask, 0)
	}
	return payload, header.OpCode, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (p *eventPump) handleFrame(payload []byte) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		p.log.Error("malformed event frame", "err", err)
		return
	}

	eventType := stringField(raw, "type")
	if !p.client.cb.isAllowed(eventType) {
		p.log.Debug("dropping disallowed event", "type", eventType)
		return
	}

	build, ok := parsers[eventType]
	if !ok {
		p.log.Debug("dropping unrecognized event", "type", eventType)
		return
	}

	event, err := build(p.client, raw)
	if err != nil {
		p.log.Error("failed to parse event", "type", eventType, "err", err)
		return
	}

	p.client.dispatcher.submit(event)
}
