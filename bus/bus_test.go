// bus/bus_test.go
package bus

import (
	"testing"
	"time"
)

const (
	TopicMixer = "mixer"
	TopicCard  = "giotto"
)

func expectPayload(t *testing.T, s *Subscription, want any) {
	t.Helper()
	select {
	case got := <-s.Channel():
		if got.Payload != want {
			t.Fatalf("payload %v, want %v", got.Payload, want)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timeout waiting for %v", want)
	}
}

func expectNoMessage(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case got := <-s.Channel():
		t.Fatalf("unexpected message on %v: %v", s.Topic(), got.Payload)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBasicPubSub(t *testing.T) {
	b := NewBus(4)
	conn := b.NewConnection("test")

	sub := conn.Subscribe(T(TopicMixer, TopicCard, "Volume"))
	conn.Publish(&Message{Topic: T(TopicMixer, TopicCard, "Volume"), Payload: 200})

	expectPayload(t, sub, 200)
}

func TestRetainedMessage(t *testing.T) {
	b := NewBus(2)
	conn := b.NewConnection("test")

	conn.Publish(&Message{Topic: T(TopicMixer, TopicCard, "Mute"), Payload: true, Retained: true})
	sub := conn.Subscribe(T(TopicMixer, TopicCard, "Mute"))
	expectPayload(t, sub, true)

	if m, ok := b.Retained(T(TopicMixer, TopicCard, "Mute")); !ok || m.Payload != true {
		t.Fatalf("Retained = %v, %v", m, ok)
	}

	conn.Publish(&Message{Topic: T(TopicMixer, TopicCard, "Mute"), Retained: true})
	if _, ok := b.Retained(T(TopicMixer, TopicCard, "Mute")); ok {
		t.Fatal("nil retained payload should clear")
	}
}

func TestWildcards(t *testing.T) {
	b := NewBus(8)
	c := b.NewConnection("test")

	sOne := c.Subscribe(T(TopicMixer, WildOne, "Volume"))
	sRest := c.Subscribe(T(TopicMixer, WildRest))
	sNo := c.Subscribe(T(TopicMixer, WildOne, "Mute"))

	c.Publish(&Message{Topic: T(TopicMixer, TopicCard, "Volume"), Payload: "m1"})

	expectPayload(t, sOne, "m1")
	expectPayload(t, sRest, "m1")
	expectNoMessage(t, sNo)
}

func TestMatch(t *testing.T) {
	cases := []struct {
		p, t Topic
		want bool
	}{
		{T("a", "b"), T("a", "b"), true},
		{T("a", "+"), T("a", "b"), true},
		{T("a", "+"), T("a", "b", "c"), false},
		{T("a", "#"), T("a", "b", "c"), true},
		{T("a", "b", "c"), T("a", "b"), false},
		{T("#", "a"), T("x", "a"), false},
	}
	for _, c := range cases {
		if got := c.p.Match(c.t); got != c.want {
			t.Fatalf("%v.Match(%v) = %v", c.p, c.t, got)
		}
	}
}

func TestQueueDropsOldest(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("test")
	sub := c.Subscribe(T("x"))

	for i := 1; i <= 3; i++ {
		c.Publish(&Message{Topic: T("x"), Payload: i})
	}
	expectPayload(t, sub, 2)
	expectPayload(t, sub, 3)
}

func TestUnsubscribeAndDisconnect(t *testing.T) {
	b := NewBus(2)
	c := b.NewConnection("test")
	s1 := c.Subscribe(T("x"))
	s2 := c.Subscribe(T("y"))

	s1.Unsubscribe()
	if _, ok := <-s1.Channel(); ok {
		t.Fatal("channel should be closed")
	}
	s1.Unsubscribe() // second call is a no-op

	c.Disconnect()
	if _, ok := <-s2.Channel(); ok {
		t.Fatal("channel should be closed after Disconnect")
	}
	c.Publish(&Message{Topic: T("y"), Payload: 1})
}
