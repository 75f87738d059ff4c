package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, e *Endpoint) Message {
	select {
	case msg := <-e.Messages():
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func assertEmpty(t *testing.T, e *Endpoint) {
	select {
	case msg := <-e.Messages():
		t.Errorf("unexpected message: %v", msg)
	default:
	}
}

func TestPublishSkipsSender(t *testing.T) {
	hub := NewHub(0)
	sender := hub.Attach()
	receiverOne := hub.Attach()
	receiverTwo := hub.Attach()
	assert.Equal(t, 3, hub.Count())

	sender.Publish(SyncTypes{})
	assert.Equal(t, SyncTypes{}, receive(t, receiverOne))
	assert.Equal(t, SyncTypes{}, receive(t, receiverTwo))
	assertEmpty(t, sender)
}

func TestPublishOrder(t *testing.T) {
	hub := NewHub(0)
	sender := hub.Attach()
	receiver := hub.Attach()

	sender.Publish(Rename{FromPath: "/a", ToPath: "/b"})
	sender.Publish(Rename{FromPath: "/b", ToPath: "/c"})
	sender.Publish(Rename{FromPath: "/c", ToPath: "/d"})

	assert.Equal(t, Rename{FromPath: "/a", ToPath: "/b"}, receive(t, receiver))
	assert.Equal(t, Rename{FromPath: "/b", ToPath: "/c"}, receive(t, receiver))
	assert.Equal(t, Rename{FromPath: "/c", ToPath: "/d"}, receive(t, receiver))
}

func TestNoReplay(t *testing.T) {
	hub := NewHub(0)
	sender := hub.Attach()
	sender.Publish(SyncSandbox{})

	late := hub.Attach()
	assertEmpty(t, late)
}

func TestSlowContextDropped(t *testing.T) {
	hub := NewHub(1)
	sender := hub.Attach()
	slow := hub.Attach()

	sender.Publish(Rename{FromPath: "/a", ToPath: "/b"})
	sender.Publish(Rename{FromPath: "/b", ToPath: "/c"})

	assert.Equal(t, Rename{FromPath: "/a", ToPath: "/b"}, receive(t, slow))
	assertEmpty(t, slow)
}

func TestOnMessage(t *testing.T) {
	hub := NewHub(0)
	sender := hub.Attach()
	receiver := hub.Attach()

	received := make(chan Message, 2)
	receiver.OnMessage(func(msg Message) {
		received <- msg
	})

	sender.Publish(SyncSandbox{})
	sender.Publish(SyncTypes{})
	for _, exp := range []Message{SyncSandbox{}, SyncTypes{}} {
		select {
		case msg := <-received:
			assert.Equal(t, exp, msg)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for handler")
		}
	}
}

func TestClose(t *testing.T) {
	hub := NewHub(0)
	sender := hub.Attach()
	receiver := hub.Attach()
	assert.NotEqual(t, sender.ID(), receiver.ID())

	receiver.Close()
	receiver.Close()
	assert.Equal(t, 1, hub.Count())

	_, ok := <-receiver.Messages()
	require.False(t, ok)

	// Publishing after a receiver detached is fine.
	sender.Publish(SyncTypes{})
}
