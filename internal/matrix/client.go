// Package matrix is the chat-network leg of the bridge: one logged-in Matrix
// account that posts notifications into rooms and feeds inbound room messages
// to the command handlers.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/zedjones/tsbridge/internal/config"
)

// MessageHandler receives one inbound room message that passed the feed
// filters.
type MessageHandler func(ctx context.Context, roomID id.RoomID, sender id.UserID, body string)

// Client wraps a mautrix session. Register handlers with OnMessage before
// calling Run.
type Client struct {
	mau      *mautrix.Client
	log      *zerolog.Logger
	startMS  int64
	handlers []MessageHandler
}

// New logs in with the configured password account and prepares the sync
// filter chain.
func New(ctx context.Context, cfg config.MatrixConfig, logger *zerolog.Logger) (*Client, error) {
	mau, err := mautrix.NewClient(cfg.Homeserver, "", "")
	if err != nil {
		return nil, fmt.Errorf("matrix client: %w", err)
	}

	_, err = mau.Login(ctx, &mautrix.ReqLogin{
		Type: mautrix.AuthTypePassword,
		Identifier: mautrix.UserIdentifier{
			Type: mautrix.IdentifierTypeUser,
			User: cfg.Username,
		},
		Password:                 cfg.Password,
		InitialDeviceDisplayName: "tsbridge",
		StoreCredentials:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("matrix login: %w", err)
	}
	logger.Info().Str("user_id", mau.UserID.String()).Msg("logged in to matrix")

	c := &Client{
		mau:     mau,
		log:     logger,
		startMS: time.Now().UnixMilli(),
	}

	syncer := mau.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnEventType(event.EventMessage, c.handleMessage)

	return c, nil
}

// OnMessage registers a handler for inbound messages. Not safe to call once
// Run has started.
func (c *Client) OnMessage(h MessageHandler) {
	c.handlers = append(c.handlers, h)
}

// SendText posts plain text into a room.
func (c *Client) SendText(ctx context.Context, roomID, text string) error {
	_, err := c.mau.SendText(ctx, id.RoomID(roomID), text)
	return err
}

// UserID returns the logged-in account's Matrix id.
func (c *Client) UserID() id.UserID {
	return c.mau.UserID
}

// Run drives the sync loop until ctx ends.
func (c *Client) Run(ctx context.Context) error {
	err := c.mau.SyncWithContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("matrix sync: %w", err)
	}
	return nil
}

func (c *Client) handleMessage(ctx context.Context, evt *event.Event) {
	if !shouldHandle(c.mau.UserID, evt.Sender, evt.Timestamp, c.startMS) {
		return
	}
	body := evt.Content.AsMessage().Body
	for _, h := range c.handlers {
		h(ctx, evt.RoomID, evt.Sender, body)
	}
}

// shouldHandle drops the bridge's own messages (feedback-loop prevention)
// and anything synced from before the process started (initial-sync
// backlog).
func shouldHandle(self, sender id.UserID, timestampMS, startMS int64) bool {
	if sender == self {
		return false
	}
	return timestampMS >= startMS
}
