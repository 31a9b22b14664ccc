package monitoring

import "testing"

func TestSetLogger(t *testing.T) {
	defer SetLoggers(Current())

	var got []string
	SetLogger(func(format string, v ...interface{}) { got = append(got, format) })
	Debugf("frame 1")
	Logf("capture started")
	Warnf("frame dropped")
	if len(got) != 3 || got[1] != "capture started" {
		t.Errorf("custom logger got %q", got)
	}

	got = nil
	SetLogger(nil)
	Debugf("muted")
	Logf("muted")
	Warnf("muted")
	if len(got) != 0 {
		t.Error("nil logger should mute output")
	}
}

func TestSetLoggers(t *testing.T) {
	defer SetLoggers(Current())

	var warned string
	SetLoggers(Loggers{Warnf: func(format string, v ...interface{}) { warned = format }})
	Logf("muted")
	Warnf("overflow")
	if warned != "overflow" {
		t.Errorf("warn hook got %q", warned)
	}
}
