package recorder

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/usbsniff/internal/timeutil"
	"github.com/banshee-data/usbsniff/internal/transport"
)

func testFrame(seq int) transport.Frame {
	payload := bytes.Repeat([]byte{byte(seq), byte(seq >> 8), 0xA5, 0x5A}, 1+seq%3)
	return transport.NewFrame(uint32(seq*100), payload)
}

func recordFrames(t *testing.T, basePath string, n int) (*timeutil.MockClock, []transport.Frame) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Unix(1_700_000_000, 0))
	rec, err := NewRecorder(basePath, Options{SessionID: "s-1", ClockHz: 60_000_000, Framer: "batch", Clock: clock})
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}
	var frames []transport.Frame
	for i := 0; i < n; i++ {
		f := testFrame(i)
		if err := rec.WriteFrame(f); err != nil {
			t.Fatalf("WriteFrame(%d) error = %v", i, err)
		}
		frames = append(frames, f)
		clock.Advance(time.Millisecond)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return clock, frames
}

func TestNewRecorder(t *testing.T) {
	basePath := filepath.Join(t.TempDir(), "log")

	rec, err := NewRecorder(basePath, Options{})
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}
	defer rec.Close()

	if rec.Path() != basePath {
		t.Errorf("Path() = %q, want %q", rec.Path(), basePath)
	}
	if rec.FrameCount() != 0 {
		t.Errorf("FrameCount() = %d, want 0", rec.FrameCount())
	}
	if rec.Header().SessionID == "" {
		t.Error("session id not generated")
	}
	if _, err := os.Stat(filepath.Join(basePath, "frames")); err != nil {
		t.Errorf("frames directory not created: %v", err)
	}
}

func TestRecordAndReplay(t *testing.T) {
	basePath := filepath.Join(t.TempDir(), "log")
	_, want := recordFrames(t, basePath, 2*ChunkSize+17)

	rp, err := NewReplayer(basePath)
	if err != nil {
		t.Fatalf("NewReplayer() error = %v", err)
	}
	defer rp.Close()

	h := rp.Header()
	if h.TotalFrames != uint64(len(want)) || h.Chunks != 3 || h.SessionID != "s-1" {
		t.Fatalf("header = %+v", h)
	}
	if h.EndNs-h.StartNs != int64(len(want)-1)*int64(time.Millisecond) {
		t.Errorf("wall span = %d", h.EndNs-h.StartNs)
	}

	var got []transport.Frame
	err = rp.Each(func(e IndexEntry, f transport.Frame) error {
		if e.Timestamp != f.Timestamp {
			t.Errorf("index timestamp %d != frame timestamp %d", e.Timestamp, f.Timestamp)
		}
		got = append(got, f)
		return nil
	})
	if err != nil {
		t.Fatalf("Each() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("replayed frames mismatch (-want +got):\n%s", diff)
	}
	if _, err := rp.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Errorf("ReadFrame past end = %v, want io.EOF", err)
	}
}

func TestChunkIsFrameStream(t *testing.T) {
	basePath := filepath.Join(t.TempDir(), "log")
	_, want := recordFrames(t, basePath, 5)

	data, err := os.ReadFile(chunkPath(basePath, 0))
	if err != nil {
		t.Fatal(err)
	}
	var got []transport.Frame
	err = transport.DecodeFrames(bytes.NewReader(data), transport.DefaultLimits(), func(f transport.Frame) error {
		got = append(got, f)
		return nil
	})
	if err != nil {
		t.Fatalf("DecodeFrames() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("chunk frames mismatch (-want +got):\n%s", diff)
	}
}

func TestReplayerSeek(t *testing.T) {
	basePath := filepath.Join(t.TempDir(), "log")
	_, want := recordFrames(t, basePath, 10)

	rp, err := NewReplayer(basePath)
	if err != nil {
		t.Fatal(err)
	}
	if err := rp.Seek(7); err != nil {
		t.Fatalf("Seek(7) error = %v", err)
	}
	f, err := rp.ReadFrame()
	if err != nil || f.Timestamp != want[7].Timestamp {
		t.Fatalf("ReadFrame after Seek(7) = %+v, %v", f, err)
	}
	if err := rp.Seek(10); err == nil {
		t.Error("Seek past end should fail")
	}

	start := rp.Header().StartNs
	if err := rp.SeekToWallTime(start + int64(3*time.Millisecond) - 1); err != nil {
		t.Fatal(err)
	}
	if rp.CurrentFrame() != 3 {
		t.Errorf("SeekToWallTime -> frame %d, want 3", rp.CurrentFrame())
	}
	if err := rp.SeekToWallTime(start + int64(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if rp.CurrentFrame() != 9 {
		t.Errorf("SeekToWallTime past end -> frame %d, want 9", rp.CurrentFrame())
	}
}

func TestRecorderClosed(t *testing.T) {
	rec, err := NewRecorder(filepath.Join(t.TempDir(), "log"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}
	if err := rec.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if err := rec.WriteFrame(testFrame(1)); !errors.Is(err, ErrClosed) {
		t.Errorf("WriteFrame after Close = %v, want ErrClosed", err)
	}
}

func TestRecorderRejectsMalformedFrame(t *testing.T) {
	rec, err := NewRecorder(filepath.Join(t.TempDir(), "log"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer rec.Close()
	bad := transport.Frame{Length: 16, Payload: []byte{1, 2, 3, 4}}
	if err := rec.WriteFrame(bad); !errors.Is(err, transport.ErrLengthMismatch) {
		t.Errorf("WriteFrame(bad) = %v, want ErrLengthMismatch", err)
	}
	if rec.FrameCount() != 0 {
		t.Errorf("FrameCount() = %d after rejected frame", rec.FrameCount())
	}
}

func TestNewReplayerErrors(t *testing.T) {
	t.Run("missing header", func(t *testing.T) {
		if _, err := NewReplayer(t.TempDir()); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("truncated index", func(t *testing.T) {
		basePath := filepath.Join(t.TempDir(), "log")
		recordFrames(t, basePath, 3)
		idx := filepath.Join(basePath, "index.bin")
		data, _ := os.ReadFile(idx)
		if err := os.WriteFile(idx, data[:len(data)-1], 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := NewReplayer(basePath); err == nil {
			t.Error("expected error for truncated index")
		}
	})
	t.Run("count mismatch", func(t *testing.T) {
		basePath := filepath.Join(t.TempDir(), "log")
		recordFrames(t, basePath, 3)
		idx := filepath.Join(basePath, "index.bin")
		data, _ := os.ReadFile(idx)
		if err := os.WriteFile(idx, data[:indexEntrySize], 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := NewReplayer(basePath); err == nil {
			t.Error("expected error for index/header mismatch")
		}
	})
}
