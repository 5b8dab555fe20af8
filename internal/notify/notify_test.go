package notify

import (
	"testing"
)

func TestPublishReachesSubscribers(t *testing.T) {
	hub := NewHub()

	var got []string
	unsubscribe := hub.Subscribe("inbox:1", func(channel string, message []byte) {
		got = append(got, string(message))
	})

	hub.Publish("inbox:1", []byte("first"))
	hub.Publish("inbox:2", []byte("wrong channel"))
	hub.Publish("inbox:1", []byte("second"))

	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("unexpected messages %v", got)
	}

	unsubscribe()
	hub.Publish("inbox:1", []byte("after unsubscribe"))
	if len(got) != 2 {
		t.Errorf("expected no delivery after unsubscribe, got %v", got)
	}
}

func TestUnsubscribeTwice(t *testing.T) {
	hub := NewHub()
	unsubscribe := hub.Subscribe("inbox:1", func(channel string, message []byte) {})
	unsubscribe()
	unsubscribe()

	if n := hub.Subscribers("inbox:1"); n != 0 {
		t.Errorf("expected 0 subscribers, got %d", n)
	}
}

func TestMultipleSubscribers(t *testing.T) {
	hub := NewHub()
	first, second := 0, 0
	hub.Subscribe("inbox:1", func(channel string, message []byte) { first++ })
	hub.Subscribe("inbox:1", func(channel string, message []byte) { second++ })

	hub.Publish("inbox:1", []byte("ping"))
	if first != 1 || second != 1 {
		t.Errorf("expected both subscribers to hear the message, got %d and %d", first, second)
	}
}
