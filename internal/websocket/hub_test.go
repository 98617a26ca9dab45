package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_BroadcastDropsSlowClients(t *testing.T) {
	h := NewHub()
	go h.Run()

	// An unbuffered send channel with no reader models a client whose
	// write pump has stalled.
	slow := &Client{hub: h, send: make(chan []byte)}
	h.register <- slow

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	// ClientCount polls concurrently with the broadcast loop's map
	// mutation when it drops the slow client.
	require.NoError(t, h.Broadcast("downloads:progress", map[string]int{"active": 1}))

	assert.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 10*time.Millisecond)

	if _, open := <-slow.send; open {
		t.Error("dropped client's send channel left open")
	}
}

func TestHub_BroadcastDeliversToReadyClients(t *testing.T) {
	h := NewHub()
	go h.Run()

	ready := &Client{hub: h, send: make(chan []byte, 4)}
	h.register <- ready
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, h.Broadcast("catalog:updated", map[string]string{"version": "v2"}))

	select {
	case msg := <-ready.send:
		assert.Contains(t, string(msg), `"type":"catalog:updated"`)
		assert.Contains(t, string(msg), `"version":"v2"`)
	case <-time.After(time.Second):
		t.Fatal("broadcast not delivered")
	}
	assert.Equal(t, 1, h.ClientCount())
}
