package cacher

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vertextoedge/audio-fetch-cache/internal/adapter/filesystem"
	"github.com/vertextoedge/audio-fetch-cache/internal/domain"
	"github.com/vertextoedge/audio-fetch-cache/internal/domain/event"
	"github.com/vertextoedge/audio-fetch-cache/internal/port"
	"github.com/vertextoedge/audio-fetch-cache/internal/service/metastore"
)

const mib = 1 << 20

// fakeTransport implements port.Transport for testing
type fakeTransport struct {
	mu      sync.Mutex
	calls   map[string]int
	respond func(ctx context.Context, url string, call int) (*port.TransportResponse, error)
}

func newFakeTransport(respond func(ctx context.Context, url string, call int) (*port.TransportResponse, error)) *fakeTransport {
	return &fakeTransport{calls: make(map[string]int), respond: respond}
}

func (f *fakeTransport) Get(ctx context.Context, url string) (*port.TransportResponse, error) {
	f.mu.Lock()
	f.calls[url]++
	n := f.calls[url]
	f.mu.Unlock()
	return f.respond(ctx, url, n)
}

func (f *fakeTransport) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeTransport) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// serveAll answers every URL with the same body
func serveAll(body []byte) *fakeTransport {
	return newFakeTransport(func(ctx context.Context, url string, call int) (*port.TransportResponse, error) {
		return audioResponse(body), nil
	})
}

func audioResponse(body []byte) *port.TransportResponse {
	return &port.TransportResponse{
		StatusCode:    http.StatusOK,
		ContentType:   "audio/mpeg",
		ContentLength: int64(len(body)),
		Body:          io.NopCloser(bytes.NewReader(body)),
	}
}

// gatedResponse serves body once release is closed or fails when ctx ends
func gatedResponse(ctx context.Context, body []byte, release <-chan struct{}) *port.TransportResponse {
	resp := audioResponse(body)
	resp.Body = io.NopCloser(&gatedReader{ctx: ctx, release: release, r: bytes.NewReader(body)})
	return resp
}

type gatedReader struct {
	ctx     context.Context
	release <-chan struct{}
	r       io.Reader
}

func (g *gatedReader) Read(p []byte) (int, error) {
	select {
	case <-g.release:
		return g.r.Read(p)
	case <-g.ctx.Done():
		return 0, g.ctx.Err()
	}
}

// mp3Body returns size bytes starting with an ID3 header
func mp3Body(size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = byte(i % 251)
	}
	copy(b, "ID3\x04\x00\x00")
	return b
}

// fakeGate implements port.DeviceGate for testing
type fakeGate struct {
	mu     sync.Mutex
	normal bool
	high   bool
	subs   []chan struct{}
}

func newFakeGate(allowed bool) *fakeGate {
	return &fakeGate{normal: allowed, high: allowed}
}

func (g *fakeGate) CanTransfer(highPriority bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if highPriority {
		return g.high
	}
	return g.normal
}

func (g *fakeGate) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	g.mu.Lock()
	g.subs = append(g.subs, ch)
	g.mu.Unlock()
	return ch, func() {}
}

func (g *fakeGate) Set(normal, high bool) {
	g.mu.Lock()
	g.normal, g.high = normal, high
	subs := append([]chan struct{}(nil), g.subs...)
	g.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// fakeFeedback implements port.FeedbackRepository for testing
type fakeFeedback struct {
	mu    sync.Mutex
	liked map[string]bool
	err   error
	calls int
}

func newFakeFeedback() *fakeFeedback {
	return &fakeFeedback{liked: make(map[string]bool)}
}

func (f *fakeFeedback) IsLiked(ctx context.Context, url string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.liked[url], nil
}

func (f *fakeFeedback) SetLiked(ctx context.Context, url string, liked bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.liked[url] = liked
	return nil
}

// recorder captures every dispatched event
type recorder struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (r *recorder) Handle(ev event.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) HandledEvents() []string {
	return []string{"*"}
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.EventName() == name {
			n++
		}
	}
	return n
}

func newRecordingDispatcher() (*event.InMemoryDispatcher, *recorder) {
	d := event.NewInMemoryDispatcher(zap.NewNop())
	r := &recorder{}
	d.Subscribe(r)
	return d, r
}

func newTestFS(t *testing.T) *filesystem.Manager {
	t.Helper()
	fs, err := filesystem.NewManager(t.TempDir())
	require.NoError(t, err)
	return fs
}

func newTestMeta() *metastore.Store {
	return metastore.New(nil, zap.NewNop())
}

func tempFiles(t *testing.T, fs *filesystem.Manager) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(fs.TempDir())
	require.NoError(t, err)
	return entries
}

func testRequest(url string, high bool, importance domain.Importance) *pendingRequest {
	return newPendingRequest(context.Background(), url, domain.KeyFor(url), high, importance)
}
