package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chatline/chatline-api/internal/models"
	"github.com/chatline/chatline-api/pkg/config"
)

func testWSConfig() config.WSConfig {
	return config.WSConfig{
		ReadLimit:      4096,
		WriteWait:      time.Second,
		PingPeriod:     time.Minute,
		SendBufferSize: 16,
	}
}

func startHub(t *testing.T) (*Hub, func()) {
	t.Helper()
	hub := NewHub(NewPresenceTracker(), nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	return hub, func() {
		cancel()
		<-done
	}
}

func joinClient(t *testing.T, hub *Hub, userID, username string) *Client {
	t.Helper()
	client := newClient(hub, nil, testWSConfig(), zap.NewNop(), userID, username, nil)
	hub.register <- client
	return client
}

func nextEvent(t *testing.T, client *Client) Event {
	t.Helper()
	select {
	case frame, ok := <-client.send:
		require.True(t, ok, "send channel closed")
		var event Event
		require.NoError(t, json.Unmarshal(frame, &event))
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func presenceCount(t *testing.T, event Event) int {
	t.Helper()
	require.Equal(t, EventPresenceUpdate, event.Type)
	payload, ok := event.Payload.(map[string]interface{})
	require.True(t, ok)
	return int(payload["count"].(float64))
}

func TestHubBroadcastsPresenceOnJoin(t *testing.T) {
	hub, stop := startHub(t)
	defer stop()

	alice := joinClient(t, hub, "u1", "alice")
	assert.Equal(t, 1, presenceCount(t, nextEvent(t, alice)))

	bob := joinClient(t, hub, "u2", "bob")
	// Both connected clients observe bob's arrival.
	assert.Equal(t, 2, presenceCount(t, nextEvent(t, alice)))
	assert.Equal(t, 2, presenceCount(t, nextEvent(t, bob)))
}

func TestHubFansOutMessagesToAllClients(t *testing.T) {
	hub, stop := startHub(t)
	defer stop()

	alice := joinClient(t, hub, "u1", "alice")
	nextEvent(t, alice)
	bob := joinClient(t, hub, "u2", "bob")
	nextEvent(t, alice)
	nextEvent(t, bob)

	hub.BroadcastMessageCreated(models.Message{ID: "m1", AuthorID: "u1", Content: "hello"})

	for _, client := range []*Client{alice, bob} {
		event := nextEvent(t, client)
		assert.Equal(t, EventMessageCreated, event.Type)
		payload := event.Payload.(map[string]interface{})
		assert.Equal(t, "m1", payload["id"])
	}
}

func TestHubUnregisterUpdatesPresence(t *testing.T) {
	hub, stop := startHub(t)
	defer stop()

	alice := joinClient(t, hub, "u1", "alice")
	nextEvent(t, alice)
	bob := joinClient(t, hub, "u2", "bob")
	nextEvent(t, alice)
	nextEvent(t, bob)

	hub.unregister <- bob
	assert.Equal(t, 1, presenceCount(t, nextEvent(t, alice)))
}

func TestHubSecondConnectionSameUser(t *testing.T) {
	hub, stop := startHub(t)
	defer stop()

	tab1 := joinClient(t, hub, "u1", "alice")
	assert.Equal(t, 1, presenceCount(t, nextEvent(t, tab1)))

	tab2 := joinClient(t, hub, "u1", "alice")
	// Still one distinct user online.
	assert.Equal(t, 1, presenceCount(t, nextEvent(t, tab1)))
	assert.Equal(t, 1, presenceCount(t, nextEvent(t, tab2)))

	hub.unregister <- tab1
	assert.Equal(t, 1, presenceCount(t, nextEvent(t, tab2)))

	hub.unregister <- tab2
	require.Eventually(t, func() bool {
		return hub.presence.OnlineCount() == 0
	}, time.Second, 10*time.Millisecond)
}

func TestHubDroppedSlowClientCorrectsPresence(t *testing.T) {
	hub, stop := startHub(t)
	defer stop()

	alice := joinClient(t, hub, "u1", "alice")
	assert.Equal(t, 1, presenceCount(t, nextEvent(t, alice)))

	// A client with a single-slot buffer; its join event fills it and it is
	// never drained.
	slowCfg := testWSConfig()
	slowCfg.SendBufferSize = 1
	slow := newClient(hub, nil, slowCfg, zap.NewNop(), "u2", "bob", nil)
	hub.register <- slow
	assert.Equal(t, 2, presenceCount(t, nextEvent(t, alice)))

	hub.BroadcastMessageCreated(models.Message{ID: "m1", AuthorID: "u1", Content: "hello"})

	event := nextEvent(t, alice)
	assert.Equal(t, EventMessageCreated, event.Type)

	// The eviction of the stalled client reaches the survivors as a fresh
	// presence snapshot.
	assert.Equal(t, 1, presenceCount(t, nextEvent(t, alice)))
	require.Eventually(t, func() bool {
		return hub.presence.OnlineCount() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestHubDeletedEventCarriesID(t *testing.T) {
	hub, stop := startHub(t)
	defer stop()

	alice := joinClient(t, hub, "u1", "alice")
	nextEvent(t, alice)

	hub.BroadcastMessageDeleted("m9")

	event := nextEvent(t, alice)
	assert.Equal(t, EventMessageDeleted, event.Type)
	payload := event.Payload.(map[string]interface{})
	assert.Equal(t, "m9", payload["id"])
}
