package testutil

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/usbsniff/internal/transport"
)

func TestRandomInputsReproducible(t *testing.T) {
	a := RandomInputs(7, 100)
	b := RandomInputs(7, 100)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, RandomInputs(8, 100))

	controls := 0
	for _, in := range a {
		if in.Control {
			controls++
		}
	}
	assert.Greater(t, controls, 0)
	assert.Less(t, controls, 50)
}

func TestLocalRequest(t *testing.T) {
	req := LocalRequest(http.MethodPost, "/debug/x", nil)
	assert.Equal(t, "127.0.0.1:12345", req.RemoteAddr)
	assert.Empty(t, req.Header.Get("Content-Type"))
}

func TestFrameLog(t *testing.T) {
	var l FrameLog
	assert.NoError(t, l.WriteFrame(transport.NewFrame(1, []byte{1, 2, 3, 4})))
	assert.NoError(t, l.WriteFrame(transport.NewFrame(2, []byte{5, 6, 7, 8})))
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, Payload(l.Frames()))
}

func TestAssertStatusCode(t *testing.T) {
	AssertStatusCode(t, http.StatusOK, http.StatusOK)
}
