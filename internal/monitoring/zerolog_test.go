package monitoring

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"", zerolog.InfoLevel, false},
		{"debug", zerolog.DebugLevel, false},
		{" WARN ", zerolog.WarnLevel, false},
		{"off", zerolog.Disabled, false},
		{"chatty", zerolog.NoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNewZerologf(t *testing.T) {
	var buf bytes.Buffer
	logf := NewZerologf(&buf, zerolog.InfoLevel, false)
	logf("frames=%d", 3)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "frames=3", rec["message"])
	assert.Equal(t, "info", rec["level"])
	assert.Equal(t, "usbsniff", rec["component"])

	buf.Reset()
	quiet := NewZerologf(&buf, zerolog.WarnLevel, false)
	quiet("dropped")
	assert.Zero(t, buf.Len())
}

func TestNewZerologLoggers_Levels(t *testing.T) {
	levels := func(buf *bytes.Buffer) []string {
		var out []string
		dec := json.NewDecoder(buf)
		for dec.More() {
			var rec map[string]any
			require.NoError(t, dec.Decode(&rec))
			out = append(out, rec["level"].(string)+":"+rec["message"].(string))
		}
		return out
	}
	emit := func(l Loggers) {
		l.Debugf("frame %d", 1)
		l.Infof("started")
		l.Warnf("dropped %d", 2)
	}

	tests := []struct {
		level zerolog.Level
		want  []string
	}{
		{zerolog.DebugLevel, []string{"debug:frame 1", "info:started", "warn:dropped 2"}},
		{zerolog.InfoLevel, []string{"info:started", "warn:dropped 2"}},
		{zerolog.WarnLevel, []string{"warn:dropped 2"}},
		{zerolog.Disabled, nil},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			var buf bytes.Buffer
			emit(NewZerologLoggers(&buf, tt.level, false))
			assert.Equal(t, tt.want, levels(&buf))
		})
	}
}

func TestConfigure(t *testing.T) {
	defer SetLoggers(Current())

	t.Setenv(EnvLogLevel, "error")
	var buf bytes.Buffer
	require.NoError(t, Configure(&buf, "debug", false))
	Logf("suppressed by env level")
	Warnf("suppressed by env level")
	assert.Zero(t, buf.Len())

	t.Setenv(EnvLogLevel, "")
	require.NoError(t, Configure(&buf, "debug", false))
	Debugf("traced")
	assert.Contains(t, buf.String(), `"level":"debug"`)

	t.Setenv(EnvLogLevel, "")
	assert.Error(t, Configure(&buf, "loud", false))
}
