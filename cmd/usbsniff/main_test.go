package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/usbsniff/internal/capture"
	"github.com/banshee-data/usbsniff/internal/framing"
	"github.com/banshee-data/usbsniff/internal/hostlink"
	"github.com/banshee-data/usbsniff/internal/pipeline"
	"github.com/banshee-data/usbsniff/internal/report"
	"github.com/banshee-data/usbsniff/internal/testutil"
	"github.com/banshee-data/usbsniff/internal/transport"
)

// executeCommand runs the root command with args and returns stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--log-level", "off"}, args...))
	err := root.Execute()
	return out.String(), err
}

func writeTagged(t *testing.T, inputs []framing.Input) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.bin")
	require.NoError(t, os.WriteFile(path, capture.EncodeTagged(nil, inputs), 0o644))
	return path
}

func decodeFile(t *testing.T, path string) []framing.Decoded {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var log testutil.FrameLog
	require.NoError(t, transport.DecodeFrames(bytes.NewReader(data), transport.DefaultLimits(), log.WriteFrame))
	recs, err := framing.Decode(testutil.Payload(log.Frames()))
	require.NoError(t, err)
	return recs
}

func captured(recs []framing.Decoded) []framing.Input {
	var out []framing.Input
	for _, r := range recs {
		switch r.Type {
		case framing.TypeData:
			out = append(out, framing.Input{Byte: r.Payload})
		case framing.TypeControl:
			out = append(out, framing.Input{Byte: r.Payload, Control: true})
		}
	}
	return out
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	assert.Equal(t, "usbsniff", root.Use)
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"capture", "decode", "analyse", "migrate", "watch", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "usbsniff "), out)
}

func TestCaptureToSinks(t *testing.T) {
	dir := t.TempDir()
	inputs := testutil.RandomInputs(42, 2000)
	in := writeTagged(t, inputs)
	out := filepath.Join(dir, "frames.bin")
	logDir := filepath.Join(dir, "log")
	dbPath := filepath.Join(dir, "capture.db")

	stdout, err := executeCommand(t, "capture",
		"--input", in, "--format", "tagged",
		"--depth", "32", "--idle", "5000",
		"--out", out, "--record-dir", logDir, "--db", dbPath)
	require.NoError(t, err)

	var st pipeline.Stats
	require.NoError(t, json.Unmarshal([]byte(stdout), &st))
	assert.Equal(t, uint64(len(inputs)), st.Inputs)
	assert.NotZero(t, st.Framer.Frames)

	recs := decodeFile(t, out)
	assert.Equal(t, inputs, captured(recs))
	require.NotEmpty(t, recs)
	assert.Equal(t, framing.EventStart, recs[0].Payload)

	t.Run("decode", func(t *testing.T) {
		text, err := executeCommand(t, "decode", "--records-only", out)
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(text), "\n")
		assert.Len(t, lines, len(recs))
		assert.Contains(t, lines[0], "event 0xe0")
	})

	t.Run("decode log dir", func(t *testing.T) {
		text, err := executeCommand(t, "decode", logDir)
		require.NoError(t, err)
		assert.Contains(t, text, "frame 0 ")
		assert.Contains(t, text, "# ")
	})

	t.Run("analyse", func(t *testing.T) {
		png := filepath.Join(dir, "sizes.png")
		html := filepath.Join(dir, "mix.html")
		text, err := executeCommand(t, "analyse", "--png", png, "--html", html, logDir)
		require.NoError(t, err)
		var s report.Summary
		require.NoError(t, json.Unmarshal([]byte(text), &s))
		assert.Equal(t, st.Framer.Frames, s.Frames)
		assert.Equal(t, uint64(len(inputs)), s.Records.Data+s.Records.Control)
		assert.FileExists(t, png)
		assert.FileExists(t, html)
	})

	t.Run("migrate status", func(t *testing.T) {
		text, err := executeCommand(t, "migrate", "status", "--db", dbPath)
		require.NoError(t, err)
		assert.Contains(t, text, `"current_version":3`)
	})
}

func TestCaptureWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "capture.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
framer = "stream"
flush_depth_words = 8
capture_format = "raw"
log_level = "off"
grpc_addr = "127.0.0.1:0"
`), 0o644))
	in := filepath.Join(dir, "raw.bin")
	require.NoError(t, os.WriteFile(in, []byte("hello, capture"), 0o644))
	out := filepath.Join(dir, "frames.bin")

	_, err := executeCommand(t, "--config", cfgPath, "capture", "--input", in, "--out", out)
	require.NoError(t, err)

	got := captured(decodeFile(t, out))
	var want []framing.Input
	for _, b := range []byte("hello, capture") {
		want = append(want, framing.Input{Byte: b})
	}
	assert.Equal(t, want, got)
}

func TestWatchCommand(t *testing.T) {
	pub := hostlink.NewPublisher(hostlink.PublisherConfig{ListenAddr: "127.0.0.1:0"})
	require.NoError(t, pub.Start())
	defer pub.Close()

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := executeCommand(t, "watch", "--count", "2", pub.Addr())
		done <- result{out, err}
	}()
	require.Eventually(t, func() bool { return pub.Stats().Clients == 1 }, 5*time.Second, 10*time.Millisecond)

	data := framing.Record{Type: framing.TypeData, Payload: 0x42, TimeDelta: 3}
	event := framing.Record{Type: framing.TypeEvent, Payload: framing.EventStop, TimeDelta: 1}
	require.NoError(t, pub.WriteFrame(transport.NewFrame(10, data.AppendEncoded(nil))))
	require.NoError(t, pub.WriteFrame(transport.NewFrame(20, event.AppendEncoded(nil))))

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Contains(t, r.out, "frame 0 ts=10 len=12 words=1")
		assert.Contains(t, r.out, "data 0x42 delta=3")
		assert.Contains(t, r.out, "frame 1 ts=20")
		assert.Contains(t, r.out, "event 0xf1 delta=1")
		assert.Contains(t, r.out, "# 2 frames")
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not return")
	}
}

func TestWatchCommand_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--log-level", "off", "watch", "127.0.0.1:1"})
	assert.Error(t, root.ExecuteContext(ctx))
}

func TestCaptureRequiresOneSource(t *testing.T) {
	_, err := executeCommand(t, "capture")
	assert.ErrorContains(t, err, "exactly one")

	_, err = executeCommand(t, "capture", "--input", "a", "--pcap", "b")
	assert.ErrorContains(t, err, "exactly one")
}

func TestCaptureRejectsBadFlags(t *testing.T) {
	_, err := executeCommand(t, "capture", "--input", "-", "--policy", "spill")
	assert.Error(t, err)
}

func TestMigrateRequiresDB(t *testing.T) {
	_, err := executeCommand(t, "migrate", "status")
	assert.ErrorContains(t, err, "no database")

	_, err = executeCommand(t, "migrate", "to", "x", "--db", filepath.Join(t.TempDir(), "x.db"))
	assert.ErrorContains(t, err, "invalid version")
}

func TestMigrateUpDown(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "m.db")
	out, err := executeCommand(t, "migrate", "up", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "applied")

	_, err = executeCommand(t, "migrate", "down", "--db", dbPath)
	require.NoError(t, err)
	out, err = executeCommand(t, "migrate", "status", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, `"current_version":2`)
}
