// Package integration provides integration testing utilities for segstitch.
package integration

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/asticode/go-astits"
	"github.com/grafov/m3u8"
)

// TestHarness serves numbered segment series and playlists over HTTP.
type TestHarness struct {
	t          *testing.T
	httpServer *http.Server
	httpPort   int

	mu        sync.Mutex
	series    map[string][][]byte
	playlists map[string]string
	requests  map[string]int
}

// NewTestHarness creates a new test harness.
func NewTestHarness(t *testing.T) *TestHarness {
	t.Helper()

	return &TestHarness{
		t:         t,
		httpPort:  findAvailablePort(t),
		series:    make(map[string][][]byte),
		playlists: make(map[string]string),
		requests:  make(map[string]int),
	}
}

// StartHTTPServer starts the HTTP server. Segment n of series name is served at
// /{name}/{n}.ts; indexes past the end of a series answer 404.
func (h *TestHarness) StartHTTPServer() {
	h.t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/", h.handle)

	h.httpServer = &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", h.httpPort),
		Handler: mux,
	}

	// Start server in goroutine
	go func() {
		if err := h.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.t.Logf("HTTP server error: %v", err)
		}
	}()

	h.waitForServer(h.URL()+"/healthz", 5*time.Second)
	h.t.Logf("HTTP server started on port %d", h.httpPort)
}

// URL returns the base URL of the HTTP server.
func (h *TestHarness) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", h.httpPort)
}

// AddSeries registers the payloads of a series, index 1 first.
func (h *TestHarness) AddSeries(name string, payloads [][]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.series[name] = payloads
}

// AddMediaPlaylist serves a VOD media playlist listing the first count
// segments of series name at /{name}.m3u8.
func (h *TestHarness) AddMediaPlaylist(name string, count int) {
	h.t.Helper()

	media, err := m3u8.NewMediaPlaylist(0, uint(count))
	if err != nil {
		h.t.Fatalf("failed to create media playlist: %v", err)
	}
	media.TargetDuration = 4
	for i := 1; i <= count; i++ {
		if err := media.Append(fmt.Sprintf("%s/%d.ts", name, i), 4.0, ""); err != nil {
			h.t.Fatalf("failed to append segment %d: %v", i, err)
		}
	}
	media.Close()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.playlists["/"+name+".m3u8"] = media.Encode().String()
}

// AddMasterPlaylist serves a master playlist at /{name}.m3u8 whose variants
// point at previously added media playlists, keyed by bandwidth.
func (h *TestHarness) AddMasterPlaylist(name string, variants map[uint32]string) {
	h.t.Helper()

	master := m3u8.NewMasterPlaylist()
	for bandwidth, media := range variants {
		master.Append(media+".m3u8", nil, m3u8.VariantParams{Bandwidth: bandwidth})
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.playlists["/"+name+".m3u8"] = master.Encode().String()
}

// Requests returns how many times path was requested.
func (h *TestHarness) Requests(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.requests[path]
}

func (h *TestHarness) handle(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests[r.URL.Path]++

	if r.URL.Path == "/healthz" {
		w.WriteHeader(http.StatusOK)
		return
	}

	if content, ok := h.playlists[r.URL.Path]; ok {
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		fmt.Fprint(w, content)
		return
	}

	name, file, ok := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	n, err := strconv.Atoi(strings.TrimSuffix(file, ".ts"))
	payloads := h.series[name]
	if err != nil || n < 1 || n > len(payloads) {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "video/mp2t")
	w.Write(payloads[n-1])
}

// Cleanup stops the HTTP server.
func (h *TestHarness) Cleanup() {
	h.t.Helper()

	if h.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h.httpServer.Shutdown(ctx)
	}
}

// TransportSegment returns a small MPEG-TS payload carrying an H.264 video and
// an AAC audio stream declaration.
func TransportSegment(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	mx := astits.NewMuxer(context.Background(), &buf)
	streams := []astits.PMTElementaryStream{
		{ElementaryPID: 0x100, StreamType: astits.StreamType(0x1b)},
		{ElementaryPID: 0x101, StreamType: astits.StreamType(0x0f)},
	}
	for _, es := range streams {
		if err := mx.AddElementaryStream(es); err != nil {
			t.Fatalf("failed to add elementary stream: %v", err)
		}
	}
	mx.SetPCRPID(0x100)
	if _, err := mx.WriteTables(); err != nil {
		t.Fatalf("failed to write tables: %v", err)
	}
	return buf.Bytes()
}

// findSegstitchBinary locates a prebuilt segstitch binary, skipping the test
// when there is none.
func findSegstitchBinary(t *testing.T) string {
	t.Helper()

	// Try several possible locations
	candidates := []string{
		"../../segstitch",           // From test/integration
		"./segstitch",               // From project root
		"./cmd/segstitch/segstitch", // Built in place
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, _ := filepath.Abs(path)
			t.Logf("Found segstitch binary at: %s", absPath)
			return absPath
		}
	}

	if path, err := exec.LookPath("segstitch"); err == nil {
		return path
	}

	t.Skip("segstitch binary not found. Run 'go build -o segstitch ./cmd/segstitch' first")
	return ""
}

// waitForServer waits for a server to become available.
func (h *TestHarness) waitForServer(url string, timeout time.Duration) {
	h.t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}

	h.t.Fatalf("server at %s did not become available within %v", url, timeout)
}

// findAvailablePort finds an available TCP port.
func findAvailablePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find available port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}
