// Package testutil provides shared test helpers for the capture packages.
package testutil

import (
	"io"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/banshee-data/usbsniff/internal/framing"
	"github.com/banshee-data/usbsniff/internal/transport"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// RandomInputs returns n reproducible capture inputs; about one in five is
// a control byte.
func RandomInputs(seed uint64, n int) []framing.Input {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	in := make([]framing.Input, n)
	for i := range in {
		in[i] = framing.Input{Byte: byte(rng.UintN(256)), Control: rng.UintN(5) == 0}
	}
	return in
}

// LocalRequest builds a request that appears to come from localhost so the
// tsweb debug handler lets it through. A non-nil body is sent as a form.
func LocalRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return req
}

// FrameLog is a frame sink that keeps every frame.
type FrameLog struct {
	mu     sync.Mutex
	frames []transport.Frame
}

func (l *FrameLog) WriteFrame(f transport.Frame) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = append(l.frames, f)
	return nil
}

// Frames returns a copy of the frames received so far.
func (l *FrameLog) Frames() []transport.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]transport.Frame(nil), l.frames...)
}

// Len returns the number of frames received.
func (l *FrameLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.frames)
}

// Payload concatenates the payloads of frames.
func Payload(frames []transport.Frame) []byte {
	var b []byte
	for _, f := range frames {
		b = append(b, f.Payload...)
	}
	return b
}
