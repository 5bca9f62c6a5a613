// Package monitor polls the codec's read-only status registers and
// publishes changes on codec/<card>/status.
package monitor

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"codecctl-go/bus"
	"codecctl-go/drivers/pcm179x"
	"codecctl-go/errcode"
)

// DefaultInterval is the poll period when none is configured.
const DefaultInterval = time.Second

var topicConfigMonitor = bus.T("config", "monitor")

// StatusReader is the codec as seen by the monitor.
type StatusReader interface {
	ReadStatus() (pcm179x.Status, error)
}

// Event is the retained payload on codec/<card>/status.
type Event struct {
	Card string
	pcm179x.Status
}

type Config struct {
	Card     string
	Codec    StatusReader
	Conn     *bus.Connection
	Interval time.Duration
	Lock     sync.Locker // serialises bus access with other codec users; optional
	Logger   *slog.Logger
}

type Service struct {
	card     string
	codec    StatusReader
	conn     *bus.Connection
	interval time.Duration
	lock     sync.Locker
	log      *slog.Logger

	mu   sync.Mutex
	last *pcm179x.Status
}

func New(cfg Config) *Service {
	lg := cfg.Logger
	if lg == nil {
		lg = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	iv := cfg.Interval
	if iv <= 0 {
		iv = DefaultInterval
	}
	return &Service{
		card:     cfg.Card,
		codec:    cfg.Codec,
		conn:     cfg.Conn,
		interval: iv,
		lock:     cfg.Lock,
		log:      lg.With("svc", "monitor"),
	}
}

// Poll reads the status once and publishes it if it differs from the
// previous poll.
func (s *Service) Poll() (st pcm179x.Status, changed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lock != nil {
		s.lock.Lock()
	}
	st, err = s.codec.ReadStatus()
	if s.lock != nil {
		s.lock.Unlock()
	}
	if err != nil {
		return st, false, err
	}
	if s.last != nil && *s.last == st {
		return st, false, nil
	}
	s.last = &st
	s.log.Debug("status", "zero_l", st.ZeroLeft, "zero_r", st.ZeroRight, "id", st.ID)
	if s.conn != nil {
		s.conn.Publish(&bus.Message{
			Topic:    bus.T("codec", s.card, "status"),
			Payload:  Event{Card: s.card, Status: st},
			Retained: true,
		})
	}
	return st, true, nil
}

func (s *Service) serviceLoop(ctx context.Context) {
	cfgSub := s.conn.Subscribe(topicConfigMonitor)
	defer s.conn.Unsubscribe(cfgSub)

	tick := time.NewTicker(s.interval)
	defer tick.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			s.log.Info("monitor stopping")
			return
		case <-tick.C:
			_, _, err := s.Poll()
			// Log the first failure of a run only.
			if err != nil && !failing {
				s.log.Warn("status read failed", "err", err)
			}
			failing = err != nil
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				return
			}
			if iv, ok := intervalOf(msg.Payload); ok {
				s.interval = iv
				tick.Reset(iv)
				s.log.Info("monitor interval set", "interval", iv)
			}
		}
	}
}

// intervalOf accepts a time.Duration or a {"interval": seconds} map.
func intervalOf(p any) (time.Duration, bool) {
	switch v := p.(type) {
	case time.Duration:
		return v, v > 0
	case map[string]any:
		if f, ok := v["interval"].(float64); ok && f > 0 {
			return time.Duration(f * float64(time.Second)), true
		}
	}
	return 0, false
}

// Start runs the poll loop until ctx is done. It needs a bus connection.
func (s *Service) Start(ctx context.Context) error {
	if s.conn == nil {
		return errNoConn
	}
	go s.serviceLoop(ctx)
	return nil
}

var errNoConn = errcode.New(errcode.InvalidParams, "monitor", "no bus connection")
