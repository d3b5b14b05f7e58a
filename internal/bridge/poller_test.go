package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/zedjones/tsbridge/internal/config"
	"github.com/zedjones/tsbridge/internal/ts3"
)

type step struct {
	ev  ts3.Event
	err error
}

// scriptedSource replays a fixed sequence of wait outcomes. Once the script
// is exhausted it invokes onExhausted (typically the test's cancel func) and
// reports idle timeouts from then on.
type scriptedSource struct {
	mu          sync.Mutex
	steps       []step
	keepalives  int
	closed      bool
	clients     map[ts3.ClientID]ts3.ClientInfo
	onExhausted func()
	exhausted   sync.Once
}

func (s *scriptedSource) WaitForEvent(time.Duration) (ts3.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.steps) == 0 {
		if s.onExhausted != nil {
			s.exhausted.Do(s.onExhausted)
		}
		return nil, ts3.ErrTimeout
	}
	st := s.steps[0]
	s.steps = s.steps[1:]
	if st.err != nil {
		return nil, st.err
	}
	return st.ev, nil
}

func (s *scriptedSource) SendKeepalive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keepalives++
	return nil
}

func (s *scriptedSource) ClientInfo(id ts3.ClientID) (ts3.ClientInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.clients[id]
	if !ok {
		return ts3.ClientInfo{}, &ts3.QueryError{ID: 512, Msg: "invalid clientID"}
	}
	return info, nil
}

func (s *scriptedSource) ClientList() ([]ts3.ClientInfo, error) { return nil, nil }
func (s *scriptedSource) ChannelList() ([]ts3.Channel, error)   { return nil, nil }
func (s *scriptedSource) Poke(ts3.ClientID, string) error       { return nil }

func (s *scriptedSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *scriptedSource) keepaliveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keepalives
}

func testReconnectConfig() config.ReconnectConfig {
	return config.ReconnectConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsed:      100 * time.Millisecond,
	}
}

func newTestPoller(dial DialFunc, sender *fakeSender, rooms []string) (*Poller, *Presence) {
	logger := zerolog.Nop()
	presence := NewPresence()
	classifier := NewClassifier(presence, &logger)
	dispatcher := NewDispatcher(sender, rooms, &logger)
	p := NewPoller(dial, 50*time.Millisecond, testReconnectConfig(), classifier, dispatcher, &logger)
	return p, presence
}

func TestPollerDispatchesClassifiedEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	src := &scriptedSource{
		steps: []step{
			{err: ts3.ErrTimeout},
			{ev: ts3.ClientEntered{ClientID: 5, TargetChannelID: 1}},
			{ev: ts3.ClientLeft{ClientID: 5, ReasonID: ts3.ReasonDisconnect}},
		},
		clients:     map[ts3.ClientID]ts3.ClientInfo{5: human(5, "Alice")},
		onExhausted: cancel,
	}
	sender := &fakeSender{}
	p, presence := newTestPoller(func(context.Context) (Source, error) { return src, nil }, sender, []string{"!room:x"})

	if err := p.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	got := sender.messages()
	if len(got) != 2 || got[0].text != "Alice connected" || got[1].text != "Alice disconnected" {
		t.Fatalf("unexpected notifications: %+v", got)
	}
	if presence.Len() != 0 {
		t.Errorf("presence not empty after enter/leave: %d", presence.Len())
	}
	// One keepalive per iteration: three scripted waits plus the final wait
	// that ends the test.
	if src.keepaliveCount() != 4 {
		t.Errorf("keepalives = %d, want 4", src.keepaliveCount())
	}
}

func TestPollerTimeoutSendsKeepaliveOnly(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	src := &scriptedSource{
		steps:       []step{{err: ts3.ErrTimeout}},
		onExhausted: cancel,
	}
	sender := &fakeSender{}
	p, _ := newTestPoller(func(context.Context) (Source, error) { return src, nil }, sender, []string{"!room:x"})

	if err := p.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sender.messages()) != 0 {
		t.Errorf("timeout produced notifications: %+v", sender.messages())
	}
	if src.keepaliveCount() != 2 {
		t.Errorf("keepalives = %d, want 2", src.keepaliveCount())
	}
}

func TestPollerReconnectsAfterQueryError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	broken := &scriptedSource{
		steps: []step{{err: &ts3.QueryError{ID: -1, Msg: "connection reset"}}},
	}
	healthy := &scriptedSource{onExhausted: cancel}

	var mu sync.Mutex
	dials := 0
	dial := func(context.Context) (Source, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		if dials == 1 {
			return broken, nil
		}
		return healthy, nil
	}

	sender := &fakeSender{}
	p, _ := newTestPoller(dial, sender, []string{"!room:x"})

	if err := p.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if dials != 2 {
		t.Errorf("dials = %d, want 2", dials)
	}
	if !broken.closed {
		t.Error("failed session was not closed")
	}
}

func TestPollerGivesUpAfterBackoffBudget(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dial := func(context.Context) (Source, error) {
		return nil, errors.New("connection refused")
	}
	sender := &fakeSender{}
	p, _ := newTestPoller(dial, sender, []string{"!room:x"})

	err := p.Run(ctx)
	if err == nil {
		t.Fatal("expected error once the reconnect budget is spent")
	}
	if !strings.Contains(err.Error(), "connect voice server") {
		t.Errorf("unexpected error: %v", err)
	}
}
