package calldriver

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gobwas/ws"
)

// mockARI is a minimal stand-in for an Asterisk ARI endpoint: just
// enough HTTP to answer every REST call the call state machine and
// driver make, and a raw WebSocket upgrade to push scripted events back
// over, matching spec.md §8's "mock ARI that replays canned WebSocket
// frames and records REST calls".
type mockARI struct {
	srv *httptest.Server

	mu        sync.Mutex
	conns     []net.Conn
	bridgeN   int
	playbackN int
	names     map[string]string // channel id -> name, as created

	autoFinishPlayback bool // auto-push PlaybackFinished shortly after play
	autoDestroyOnClose bool // auto-push ChannelDestroyed on DELETE /channels/{id}
	requests           []string
}

func newMockARI(t *testing.T) *mockARI {
	m := &mockARI{
		names:              make(map[string]string),
		autoFinishPlayback: true,
		autoDestroyOnClose: true,
	}
	m.srv = httptest.NewServer(http.HandlerFunc(m.handle))
	t.Cleanup(func() {
		m.mu.Lock()
		for _, c := range m.conns {
			c.Close()
		}
		m.mu.Unlock()
		m.srv.Close()
	})
	return m
}

func (m *mockARI) hostPort() (string, string) {
	u, err := url.Parse(m.srv.URL)
	if err != nil {
		panic(err)
	}
	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		panic(err)
	}
	return host, port
}

func (m *mockARI) requestCount(substr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if strings.Contains(r, substr) {
			n++
		}
	}
	return n
}

func (m *mockARI) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/ari/events" {
		m.upgrade(w, r)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/ari")

	m.mu.Lock()
	m.requests = append(m.requests, r.Method+" "+path+"?"+r.URL.RawQuery)
	m.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && path == "/channels/externalMedia":
		m.handleExternalMedia(w, r)
	case r.Method == http.MethodPost && matchSuffix(path, "/channels/", "/snoop"):
		m.handleSnoop(w, path)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/answer"):
		writeEmpty(w)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/record"):
		writeEmpty(w)
	case r.Method == http.MethodPost && path == "/bridges":
		m.handleCreateBridge(w)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/addChannel"):
		writeEmpty(w)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/removeChannel"):
		writeEmpty(w)
	case r.Method == http.MethodPost && matchSuffix(path, "/bridges/", "/play"):
		m.handlePlay(w)
	case r.Method == http.MethodPost && strings.HasPrefix(path, "/channels/") && !strings.Contains(strings.TrimPrefix(path, "/channels/"), "/"):
		m.handleCreateChannel(w, r, path)
	case r.Method == http.MethodDelete && strings.HasPrefix(path, "/channels/"):
		m.handleCloseChannel(w, path)
	case r.Method == http.MethodDelete && strings.HasPrefix(path, "/bridges/"):
		writeEmpty(w)
	case r.Method == http.MethodPut && strings.HasPrefix(path, "/applications/"):
		writeEmpty(w)
	default:
		writeEmpty(w)
	}
}

func (m *mockARI) handleCreateChannel(w http.ResponseWriter, r *http.Request, path string) {
	id := strings.TrimPrefix(path, "/channels/")
	name := endpointToName(r.URL.Query().Get("endpoint"), id)
	m.setName(id, name)
	writeJSON(w, map[string]any{"id": id, "name": name, "state": "Ring"})

	go func() {
		time.Sleep(5 * time.Millisecond)
		m.pushEvent("StasisStart", map[string]any{
			"channel": map[string]any{"id": id, "name": name, "state": "Ring"},
			"args":    []string{},
		})
	}()
}

func (m *mockARI) handleExternalMedia(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	id, _ := body["channelId"].(string)
	if id == "" {
		id = "robot-auto"
	}
	name := "UnicastRTP/127.0.0.1-media"
	m.setName(id, name)
	writeJSON(w, map[string]any{"id": id, "name": name, "state": "Up"})

	go func() {
		time.Sleep(5 * time.Millisecond)
		m.pushEvent("StasisStart", map[string]any{
			"channel": map[string]any{"id": id, "name": name, "state": "Up"},
			"args":    []string{},
		})
	}()
}

func (m *mockARI) handleSnoop(w http.ResponseWriter, path string) {
	id := strings.TrimSuffix(strings.TrimPrefix(path, "/channels/"), "/snoop")
	snoopID := "snoop-" + id
	name := "Snoop/" + id
	m.setName(snoopID, name)
	writeJSON(w, map[string]any{"id": snoopID, "name": name})
}

func (m *mockARI) handleCreateBridge(w http.ResponseWriter) {
	m.mu.Lock()
	m.bridgeN++
	id := fmt.Sprintf("bridge-%d", m.bridgeN)
	m.mu.Unlock()
	writeJSON(w, map[string]any{"id": id})
}

func (m *mockARI) handlePlay(w http.ResponseWriter) {
	m.mu.Lock()
	m.playbackN++
	id := fmt.Sprintf("playback-%d", m.playbackN)
	auto := m.autoFinishPlayback
	m.mu.Unlock()
	writeJSON(w, map[string]any{"id": id})

	if auto {
		go func() {
			time.Sleep(5 * time.Millisecond)
			m.pushEvent("PlaybackFinished", map[string]any{
				"playback": map[string]any{"id": id, "state": "done"},
			})
		}()
	}
}

func (m *mockARI) handleCloseChannel(w http.ResponseWriter, path string) {
	id := strings.TrimPrefix(path, "/channels/")
	writeEmpty(w)

	m.mu.Lock()
	name := m.names[id]
	auto := m.autoDestroyOnClose
	m.mu.Unlock()

	if auto {
		m.pushEvent("ChannelDestroyed", map[string]any{
			"channel":   map[string]any{"id": id, "name": name, "state": "Down"},
			"cause":     16,
			"cause_txt": "Normal Clearing",
		})
	}
}

func (m *mockARI) setName(id, name string) {
	m.mu.Lock()
	m.names[id] = name
	m.mu.Unlock()
}

// pushPlaybackFinished lets a test explicitly finish a specific playback
// instead of relying on autoFinishPlayback.
func (m *mockARI) pushPlaybackFinished(playbackID string) {
	m.pushEvent("PlaybackFinished", map[string]any{
		"playback": map[string]any{"id": playbackID, "state": "done"},
	})
}

func (m *mockARI) pushEvent(eventType string, fields map[string]any) {
	fields["type"] = eventType
	fields["application"] = "loadgen"
	fields["timestamp"] = "2026-07-30T00:00:00.000+0000"
	fields["asterisk_id"] = "mock-asterisk"
	data, err := json.Marshal(fields)
	if err != nil {
		return
	}

	m.mu.Lock()
	conns := append([]net.Conn(nil), m.conns...)
	m.mu.Unlock()
	for _, c := range conns {
		_ = writeServerFrame(c, ws.OpText, data)
	}
}

func (m *mockARI) upgrade(w http.ResponseWriter, r *http.Request) {
	conn, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		return
	}
	m.mu.Lock()
	m.conns = append(m.conns, conn)
	m.mu.Unlock()

	go func() {
		defer conn.Close()
		for {
			header, err := ws.ReadHeader(conn)
			if err != nil {
				return
			}
			payload := make([]byte, header.Length)
			if _, err := readFull(conn, payload); err != nil {
				return
			}
			if header.Masked {
				ws.Cipher(payload, header.Mask, 0)
			}
			if header.OpCode == ws.OpClose {
				return
			}
		}
	}()
}

func writeServerFrame(conn net.Conn, opCode ws.OpCode, payload []byte) error {
	header := ws.Header{Fin: true, OpCode: opCode, Length: int64(len(payload))}
	if err := ws.WriteHeader(conn, header); err != nil {
		return err
	}
	_, err := conn.Write(payload)
	return err
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

func writeJSON(w http.ResponseWriter, v any) {
	data, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeEmpty(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func matchSuffix(path, prefix, suffix string) bool {
	return strings.HasPrefix(path, prefix) && strings.HasSuffix(path, suffix) && len(path) > len(prefix)+len(suffix)
}

// endpointToName derives a plausible channel name from a dial endpoint
// string, preserving the protocol prefix the real Asterisk would report
// (e.g. "PJSIP/79000000004@local" -> "PJSIP/<id>"), so Channel.Protocol's
// gate behaves the same way it would against a real ARI payload.
func endpointToName(endpoint, id string) string {
	protocol := endpoint
	if idx := strings.IndexByte(endpoint, '/'); idx >= 0 {
		protocol = endpoint[:idx]
	}
	if protocol == "" {
		protocol = "Local"
	}
	return protocol + "/" + id
}
