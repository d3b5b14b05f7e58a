package bridge

import (
	"context"

	"github.com/rs/zerolog"
)

// RoomSender delivers one text message to one chat room. The chat network
// collaborator owns delivery guarantees.
type RoomSender interface {
	SendText(ctx context.Context, roomID, text string) error
}

// Dispatcher fans a notification out to every configured room. A failure
// sending to one room is logged and does not affect the others.
type Dispatcher struct {
	sender RoomSender
	rooms  []string
	log    *zerolog.Logger
}

// NewDispatcher builds a dispatcher over the fixed room set.
func NewDispatcher(sender RoomSender, rooms []string, logger *zerolog.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, rooms: rooms, log: logger}
}

// Dispatch sends text to all rooms.
func (d *Dispatcher) Dispatch(ctx context.Context, text string) {
	for _, room := range d.rooms {
		if err := d.sender.SendText(ctx, room, text); err != nil {
			d.log.Warn().Err(err).Str("room", room).Msg("notification delivery failed")
		}
	}
}
