package framing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventLatch(t *testing.T) {
	t.Run("write then ack", func(t *testing.T) {
		var l EventLatch
		l.Write(0x11)
		_, ok := l.Pending()
		assert.False(t, ok, "write is visible only after the cycle commits")
		l.Tick()

		code, ok := l.Pending()
		assert.True(t, ok)
		assert.Equal(t, byte(0x11), code)

		l.Ack()
		l.Tick()
		_, ok = l.Pending()
		assert.False(t, ok)
		assert.Zero(t, l.Overwritten())
	})

	t.Run("write wins over ack", func(t *testing.T) {
		var l EventLatch
		l.Write(0x11)
		l.Tick()
		l.Ack()
		l.Write(0x22)
		l.Tick()

		code, ok := l.Pending()
		assert.True(t, ok)
		assert.Equal(t, byte(0x22), code)
		assert.Zero(t, l.Overwritten(), "acknowledged event was not lost")
	})

	t.Run("overwrite is counted", func(t *testing.T) {
		var l EventLatch
		l.Write(0x11)
		l.Tick()
		l.Write(0x22)
		l.Tick()

		code, _ := l.Pending()
		assert.Equal(t, byte(0x22), code)
		assert.Equal(t, uint64(1), l.Overwritten())
	})

	t.Run("same cycle writes keep the last", func(t *testing.T) {
		var l EventLatch
		l.Write(0x11)
		l.Write(0x33)
		l.Tick()

		code, _ := l.Pending()
		assert.Equal(t, byte(0x33), code)
		assert.Equal(t, uint64(1), l.Overwritten())
	})
}
