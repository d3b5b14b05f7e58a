// Package app wires the bridge together: the Matrix leg, the voice-server
// query session, the presence core, and the chat command router.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"maunium.net/go/mautrix/id"

	"github.com/zedjones/tsbridge/internal/bridge"
	"github.com/zedjones/tsbridge/internal/commands"
	"github.com/zedjones/tsbridge/internal/config"
	"github.com/zedjones/tsbridge/internal/log"
	"github.com/zedjones/tsbridge/internal/matrix"
	"github.com/zedjones/tsbridge/internal/ts3"
)

// App owns the two long-running activities: the voice-server poll loop and
// the Matrix sync loop.
type App struct {
	cfg    config.Config
	log    *zerolog.Logger
	matrix *matrix.Client
	poller *bridge.Poller
}

// New logs in to Matrix and builds the bridge. The voice-server connection
// is established by Run, so a voice outage at startup goes through the same
// reconnect policy as one at runtime.
func New(ctx context.Context, cfg config.Config, logger *zerolog.Logger) (*App, error) {
	mx, err := matrix.New(ctx, cfg.Matrix, log.Component(logger, "matrix"))
	if err != nil {
		return nil, err
	}

	presence := bridge.NewPresence()
	classifier := bridge.NewClassifier(presence, log.Component(logger, "classifier"))
	dispatcher := bridge.NewDispatcher(mx, cfg.Matrix.EventRooms, log.Component(logger, "dispatcher"))

	dial := func(ctx context.Context) (bridge.Source, error) {
		return ts3.Connect(ctx, cfg.Voice.Addr(), cfg.Voice.Username, cfg.Voice.Password, cfg.Voice.ServerID, log.Component(logger, "ts3"))
	}
	poller := bridge.NewPoller(dial, cfg.Voice.EventTimeout, cfg.Reconnect, classifier, dispatcher, log.Component(logger, "poller"))

	router := commands.NewRouter(func() commands.VoiceActor {
		if src := poller.Source(); src != nil {
			return src
		}
		return nil
	}, log.Component(logger, "commands"))

	mx.OnMessage(func(ctx context.Context, roomID id.RoomID, _ id.UserID, body string) {
		reply, handled := router.Handle(ctx, roomID.String(), body)
		if !handled {
			return
		}
		if err := mx.SendText(ctx, roomID.String(), reply); err != nil {
			logger.Warn().Err(err).Str("room", roomID.String()).Msg("command reply failed")
		}
	})

	return &App{
		cfg:    cfg,
		log:    logger,
		matrix: mx,
		poller: poller,
	}, nil
}

// Run blocks until ctx ends or one of the loops fails; the first failure
// cancels the other loop.
func (a *App) Run(ctx context.Context) error {
	a.log.Info().
		Str("voice", a.cfg.Voice.Addr()).
		Int("event_rooms", len(a.cfg.Matrix.EventRooms)).
		Msg("bridge starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.poller.Run(gctx) })
	g.Go(func() error { return a.matrix.Run(gctx) })

	if err := g.Wait(); err != nil {
		return fmt.Errorf("bridge stopped: %w", err)
	}
	a.log.Info().Msg("bridge stopped")
	return nil
}
