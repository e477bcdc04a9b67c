// Package nodetest provides an in-process fake node for tests: a websocket
// endpoint that records outbound frames and lets tests push inbound ones,
// plus the REST track endpoints.
package nodetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/osa030/soundlink/protocol"
)

// Timeout bounds every wait in this package.
const Timeout = 5 * time.Second

// Frame is an outbound frame as received by the fake node.
type Frame struct {
	Op   protocol.Op     `json:"op"`
	Data json.RawMessage `json:"d"`
}

// Decode unmarshals the frame payload into v.
func (f Frame) Decode(t testing.TB, v any) {
	t.Helper()
	if err := json.Unmarshal(f.Data, v); err != nil {
		t.Fatalf("decode %s payload: %v", f.Op, err)
	}
}

// FakeNode is a fake node server.
type FakeNode struct {
	Server   *httptest.Server
	Password string

	// RejectCode, when set, closes every accepted connection with that close
	// code right after the upgrade.
	RejectCode int

	upgrader websocket.Upgrader

	mu         sync.Mutex
	conns      []*websocket.Conn
	headers    []http.Header
	handshakes int
	results    map[string]any
	decoded    map[string]any

	connCh chan *websocket.Conn
	frames chan Frame
}

// New starts a fake node and registers its shutdown with t.Cleanup.
func New(t testing.TB, password string) *FakeNode {
	f := &FakeNode{
		Password: password,
		results:  make(map[string]any),
		decoded:  make(map[string]any),
		connCh:   make(chan *websocket.Conn, 16),
		frames:   make(chan Frame, 256),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/magma", f.serveWS)
	mux.HandleFunc("/loadtracks", f.serveLoadTracks)
	mux.HandleFunc("/decodetrack", f.serveDecodeTrack)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

// Host returns the server host.
func (f *FakeNode) Host() string {
	u, _ := url.Parse(f.Server.URL)
	return u.Hostname()
}

// Port returns the server port.
func (f *FakeNode) Port() int {
	u, _ := url.Parse(f.Server.URL)
	p, _ := strconv.Atoi(u.Port())
	return p
}

// Handshakes returns how many websocket handshakes were attempted.
func (f *FakeNode) Handshakes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handshakes
}

// Header returns the request headers of the n-th handshake.
func (f *FakeNode) Header(n int) http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n >= len(f.headers) {
		return nil
	}
	return f.headers[n]
}

// SetLoadResult registers the /loadtracks response for an identifier.
func (f *FakeNode) SetLoadResult(identifier string, result any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[identifier] = result
}

// SetDecoded registers the /decodetrack response for an encoded track.
func (f *FakeNode) SetDecoded(encoded string, info any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decoded[encoded] = info
}

func (f *FakeNode) authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == f.Password
}

func (f *FakeNode) serveWS(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.handshakes++
	f.headers = append(f.headers, r.Header.Clone())
	f.mu.Unlock()

	if !f.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	if f.RejectCode != 0 {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(f.RejectCode, "rejected"))
		_ = conn.Close()
		return
	}

	f.mu.Lock()
	f.conns = append(f.conns, conn)
	f.mu.Unlock()
	f.connCh <- conn

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var fr Frame
		if json.Unmarshal(data, &fr) != nil {
			continue
		}
		select {
		case f.frames <- fr:
		default:
		}
	}
}

func (f *FakeNode) serveLoadTracks(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	f.mu.Lock()
	result, ok := f.results[r.URL.Query().Get("identifier")]
	f.mu.Unlock()
	if !ok {
		result = map[string]any{"load_type": "NO_MATCHES", "tracks": []any{}}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func (f *FakeNode) serveDecodeTrack(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	f.mu.Lock()
	info, ok := f.decoded[r.URL.Query().Get("track")]
	f.mu.Unlock()
	if !ok {
		http.Error(w, "unknown track", http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}

// WaitConn waits for the next accepted websocket connection.
func (f *FakeNode) WaitConn(t testing.TB) *websocket.Conn {
	t.Helper()
	select {
	case c := <-f.connCh:
		return c
	case <-time.After(Timeout):
		t.Fatal("timed out waiting for a connection")
		return nil
	}
}

// Push writes v as JSON to the most recent connection.
func (f *FakeNode) Push(t testing.TB, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal push: %v", err)
	}
	f.PushRaw(t, string(data))
}

// PushRaw writes a raw text frame to the most recent connection.
func (f *FakeNode) PushRaw(t testing.TB, raw string) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		t.Fatal("no connection to push to")
	}
	if err := f.conns[len(f.conns)-1].WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("push: %v", err)
	}
}

// Next returns the next frame the client sent.
func (f *FakeNode) Next(t testing.TB) Frame {
	t.Helper()
	select {
	case fr := <-f.frames:
		return fr
	case <-time.After(Timeout):
		t.Fatal("timed out waiting for a frame")
		return Frame{}
	}
}

// NextOp skips frames until one with the given op arrives.
func (f *FakeNode) NextOp(t testing.TB, op protocol.Op) Frame {
	t.Helper()
	deadline := time.After(Timeout)
	for {
		select {
		case fr := <-f.frames:
			if fr.Op == op {
				return fr
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s frame", op)
			return Frame{}
		}
	}
}

// NoFrame fails if the client sends a frame within d.
func (f *FakeNode) NoFrame(t testing.TB, d time.Duration) {
	t.Helper()
	select {
	case fr := <-f.frames:
		t.Fatalf("unexpected %s frame: %s", fr.Op, fr.Data)
	case <-time.After(d):
	}
}

// DropConnections abruptly closes every open websocket connection.
func (f *FakeNode) DropConnections() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		_ = c.Close()
	}
	f.conns = nil
}

// Close drops connections and stops the server.
func (f *FakeNode) Close() {
	f.DropConnections()
	f.Server.Close()
}
