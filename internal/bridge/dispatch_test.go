package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

type sentMessage struct {
	room string
	text string
}

type fakeSender struct {
	mu        sync.Mutex
	sent      []sentMessage
	failRooms map[string]bool
}

func (f *fakeSender) SendText(_ context.Context, roomID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRooms[roomID] {
		return errors.New("send failed")
	}
	f.sent = append(f.sent, sentMessage{room: roomID, text: text})
	return nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func TestDispatchFansOutToAllRooms(t *testing.T) {
	logger := zerolog.Nop()
	sender := &fakeSender{}
	d := NewDispatcher(sender, []string{"!a:x", "!b:x"}, &logger)

	d.Dispatch(context.Background(), "Alice connected")

	got := sender.messages()
	if len(got) != 2 {
		t.Fatalf("got %d deliveries, want 2", len(got))
	}
	for i, room := range []string{"!a:x", "!b:x"} {
		if got[i].room != room || got[i].text != "Alice connected" {
			t.Errorf("delivery %d = %+v", i, got[i])
		}
	}
}

func TestDispatchOneFailureDoesNotBlockOthers(t *testing.T) {
	logger := zerolog.Nop()
	sender := &fakeSender{failRooms: map[string]bool{"!b:x": true}}
	d := NewDispatcher(sender, []string{"!a:x", "!b:x", "!c:x"}, &logger)

	d.Dispatch(context.Background(), "Somebody disconnected")

	got := sender.messages()
	if len(got) != 2 {
		t.Fatalf("got %d deliveries, want 2", len(got))
	}
	if got[0].room != "!a:x" || got[1].room != "!c:x" {
		t.Errorf("unexpected deliveries: %+v", got)
	}
}
