package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codecctl-go/bus"
	"codecctl-go/drivers/pcm179x"
	"codecctl-go/internal/regsim"
)

type fakeCodec struct {
	mu  sync.Mutex
	st  pcm179x.Status
	err error
	n   int
}

func (f *fakeCodec) ReadStatus() (pcm179x.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return f.st, f.err
}

func (f *fakeCodec) set(st pcm179x.Status) {
	f.mu.Lock()
	f.st = st
	f.mu.Unlock()
}

func (f *fakeCodec) reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}

func TestPoll_PublishesOnChange(t *testing.T) {
	conn := bus.NewBus(4).NewConnection("test")
	codec := &fakeCodec{st: pcm179x.Status{ID: 3}}
	s := New(Config{Card: "giotto", Codec: codec, Conn: conn})

	_, changed, err := s.Poll()
	require.NoError(t, err)
	assert.True(t, changed, "first poll always publishes")

	_, changed, err = s.Poll()
	require.NoError(t, err)
	assert.False(t, changed)

	codec.set(pcm179x.Status{ID: 3, ZeroLeft: true})
	st, changed, err := s.Poll()
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, st.ZeroLeft)

	sub := conn.Subscribe(bus.T("codec", "giotto", "status"))
	select {
	case msg := <-sub.Channel():
		ev := msg.Payload.(Event)
		assert.Equal(t, "giotto", ev.Card)
		assert.True(t, ev.ZeroLeft)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("no retained status")
	}
}

func TestPoll_Error(t *testing.T) {
	codec := &fakeCodec{err: errors.New("nak")}
	s := New(Config{Codec: codec})
	_, changed, err := s.Poll()
	assert.Error(t, err)
	assert.False(t, changed)
}

func TestPoll_WithDevice(t *testing.T) {
	sim := regsim.New(pcm179x.AddressDefault)
	sim.Poke(0x16, 0x03)
	var mu sync.Mutex
	s := New(Config{Codec: pcm179x.New(pcm179x.NewI2C(sim, 0), pcm179x.Config{}), Lock: &mu})

	st, _, err := s.Poll()
	require.NoError(t, err)
	assert.True(t, st.ZeroLeft && st.ZeroRight)
}

func TestStart_LoopAndReconfigure(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("monitor")
	codec := &fakeCodec{}
	s := New(Config{Card: "giotto", Codec: codec, Conn: conn, Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	// Nothing happens at the configured hourly period; shorten it.
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, codec.reads())

	ctl := b.NewConnection("ctl")
	ctl.Publish(&bus.Message{Topic: topicConfigMonitor, Payload: map[string]any{"interval": 0.005}})

	assert.Eventually(t, func() bool { return codec.reads() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestStart_NeedsConn(t *testing.T) {
	s := New(Config{Codec: &fakeCodec{}})
	assert.Error(t, s.Start(context.Background()))
}

func TestIntervalOf(t *testing.T) {
	iv, ok := intervalOf(2 * time.Second)
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, iv)

	iv, ok = intervalOf(map[string]any{"interval": 1.5})
	assert.True(t, ok)
	assert.Equal(t, 1500*time.Millisecond, iv)

	_, ok = intervalOf("fast")
	assert.False(t, ok)
	_, ok = intervalOf(time.Duration(0))
	assert.False(t, ok)
}
