package transport

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFrame(t *testing.T) {
	frames := []Frame{
		NewFrame(7, []byte{1, 2, 3, 4}),
		NewFrame(0xffffffff, nil),
		NewFrame(1234, bytes.Repeat([]byte{0xab}, 64)),
	}
	var buf bytes.Buffer
	for _, f := range frames {
		require.NoError(t, WriteFrame(&buf, f))
	}

	var got []Frame
	err := DecodeFrames(&buf, DefaultLimits(), func(f Frame) error {
		got = append(got, f)
		return nil
	})
	require.NoError(t, err)

	// an empty payload reads back as an empty, non-nil slice
	frames[1].Payload = []byte{}
	if diff := cmp.Diff(frames, got); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestReadFrame_Errors(t *testing.T) {
	header := func(length uint32) []byte {
		b := binary.LittleEndian.AppendUint32(nil, length)
		return binary.LittleEndian.AppendUint32(b, 0)
	}
	tests := []struct {
		name  string
		input []byte
		want  error
	}{
		{"short header", []byte{12, 0, 0}, ErrShortHeader},
		{"length below header", header(4), ErrLengthTooSmall},
		{"unaligned", header(13), ErrUnalignedLength},
		{"too large", header(1 << 30), ErrFrameTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrame(bytes.NewReader(tt.input), DefaultLimits())
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("truncated payload", func(t *testing.T) {
		in := append(header(16), 1, 2, 3)
		_, err := ReadFrame(bytes.NewReader(in), DefaultLimits())
		assert.Error(t, err)
	})
}

func TestWriteFrame_RejectsMismatch(t *testing.T) {
	err := WriteFrame(&bytes.Buffer{}, Frame{Length: 16, Payload: []byte{1, 2, 3, 4}})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestNewFrame_PadsToWord(t *testing.T) {
	tests := []struct {
		n          int
		wantLength uint32
	}{
		{0, 8},
		{1, 12},
		{3, 12},
		{4, 12},
		{5, 16},
		{7, 16},
	}
	for _, tt := range tests {
		payload := bytes.Repeat([]byte{0xcd}, tt.n)
		f := NewFrame(9, payload)
		assert.Equal(t, tt.wantLength, f.Length, "n=%d", tt.n)
		require.Len(t, f.Payload, f.PayloadLen(), "n=%d", tt.n)
		assert.Equal(t, payload, f.Payload[:tt.n])
		assert.Equal(t, make([]byte, f.PayloadLen()-tt.n), f.Payload[tt.n:])

		var buf bytes.Buffer
		require.NoError(t, WriteFrame(&buf, f), "n=%d", tt.n)
		got, err := ReadFrame(&buf, DefaultLimits())
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}

	// the caller's backing array is left alone
	backing := []byte{1, 2, 3, 9}
	NewFrame(0, backing[:3])
	assert.Equal(t, byte(9), backing[3])
}

func TestMux(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMux(&buf, StreamCapture, []byte("hello")))
	assert.Equal(t, []byte{0xa5, 0x5a, 0xa5, 0x5a}, buf.Bytes()[:4])

	h, payload, err := ReadMux(&buf, DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, MuxHeader{StreamID: StreamCapture, Length: 5}, h)
	assert.Equal(t, []byte("hello"), payload)

	bad := AppendMux(nil, StreamCapture, nil)
	bad[0] = 0
	_, _, err = ReadMux(bytes.NewReader(bad), DefaultLimits())
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestAssembler(t *testing.T) {
	var a Assembler
	beats := []Beat{
		{Word: 16, First: true},
		{Word: 99},
		{Word: 0x04030201},
		{Word: 0x08070605, Last: true},
	}
	for _, b := range beats[:3] {
		_, done, err := a.Add(b)
		require.NoError(t, err)
		require.False(t, done)
	}
	f, done, err := a.Add(beats[3])
	require.NoError(t, err)
	require.True(t, done)
	assert.Equal(t, Frame{Length: 16, Timestamp: 99, Payload: []byte{1, 2, 3, 4, 5, 6, 7, 8}}, f)
	assert.Zero(t, a.Partial())

	_, _, err = a.Add(Beat{Word: 20, First: true})
	require.NoError(t, err)
	_, _, err = a.Add(Beat{Word: 20, First: true})
	assert.Error(t, err)
}
