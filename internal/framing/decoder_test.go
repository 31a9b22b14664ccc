package framing

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStream() ([]Record, []byte) {
	recs := []Record{
		{Type: TypeEvent, Payload: EventStart, TimeDelta: 0},
		{Type: TypeData, Payload: 0x01, TimeDelta: 3},
		{Type: TypeControl, Payload: 0x4a, TimeDelta: 700, TimeLen: 1},
		OverflowRecord(),
		{Type: TypeData, Payload: 0xff, TimeDelta: 90000, TimeLen: 2},
		{Type: TypeEvent, Payload: EventStop, TimeDelta: 1 << 21, TimeLen: 3},
	}
	var raw []byte
	for _, r := range recs {
		raw = r.AppendEncoded(raw)
	}
	return recs, raw
}

func TestDecode(t *testing.T) {
	recs, raw := sampleStream()
	got, err := Decode(raw)
	require.NoError(t, err)

	var gotRecs []Record
	for _, d := range got {
		gotRecs = append(gotRecs, d.Record)
	}
	if diff := cmp.Diff(recs, gotRecs); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}

	want := uint64(0 + 3 + 700)
	assert.Equal(t, want, got[2].Time)
	want += uint64(MaxDelta) + 1
	assert.Equal(t, want, got[3].Time)
	want += 90000 + 1<<21
	assert.Equal(t, want, got[5].Time)
}

func TestDecoder_FeedAcrossBoundaries(t *testing.T) {
	_, raw := sampleStream()
	whole, err := Decode(raw)
	require.NoError(t, err)

	var d Decoder
	var got []Decoded
	for i := range raw {
		got = append(got, d.Feed(raw[i:i+1])...)
	}
	require.NoError(t, d.Close())
	if diff := cmp.Diff(whole, got); diff != "" {
		t.Errorf("byte-wise decode differs (-whole +bytewise):\n%s", diff)
	}
}

func TestDecoder_SkipsPadding(t *testing.T) {
	recs, raw := sampleStream()
	padded := append([]byte{}, raw[:2]...)
	padded = append(padded, 0, 0, 0)
	padded = append(padded, raw[2:]...)
	padded = append(padded, 0, 0)

	var d Decoder
	got := d.Feed(padded)
	require.NoError(t, d.Close())
	assert.Len(t, got, len(recs))
	assert.Equal(t, uint64(5), d.Padding())
}

func TestDecoder_Truncated(t *testing.T) {
	_, err := Decode([]byte{0x80, 0x01, 0xb0, 0x00})
	assert.ErrorIs(t, err, ErrTruncatedRecord)
}
