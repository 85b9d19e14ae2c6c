package wsmux

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientOrigin_IsDistinctPerClient(t *testing.T) {
	assert.NotEqual(t, clientOrigin(1), clientOrigin(2))
	assert.Equal(t, "1", clientOrigin(1))
}

func TestConnection_EnqueueBinary_FailsOnceBufferFull(t *testing.T) {
	cfg := Config{SendBufferDepth: 2}
	c := &connection{
		cfg:    cfg,
		send:   make(chan outboundFrame, 2),
		closed: make(chan struct{}),
	}

	assert.True(t, c.enqueueBinary([]byte("a")))
	assert.True(t, c.enqueueBinary([]byte("b")))
	assert.False(t, c.enqueueBinary([]byte("c")), "buffer is full, enqueue should report lag rather than block")
}

// close() also closes the websocket.Conn, which this test has none of, so it
// exercises the closeOnce guard that close() wraps the channel close in: a
// second guarded close must not panic.
func TestConnection_Close_IsIdempotent(t *testing.T) {
	c := &connection{closed: make(chan struct{})}
	c.closeOnce.Do(func() { close(c.closed) })

	assert.NotPanics(t, func() {
		c.closeOnce.Do(func() { close(c.closed) })
	})
}
