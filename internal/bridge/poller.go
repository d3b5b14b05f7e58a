// Package bridge is the presence-tracking core: it drives the voice-server
// event stream, keeps the online-client mapping, classifies raw events into
// notification text, and fans notifications out to chat rooms.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/zedjones/tsbridge/internal/config"
	"github.com/zedjones/tsbridge/internal/ts3"
)

// Source is the full query-session capability the poll loop owns. Command
// handlers borrow the list/poke subset through Poller.Source.
type Source interface {
	WaitForEvent(timeout time.Duration) (ts3.Event, error)
	SendKeepalive() error
	ClientInfo(id ts3.ClientID) (ts3.ClientInfo, error)
	ClientList() ([]ts3.ClientInfo, error)
	ChannelList() ([]ts3.Channel, error)
	Poke(id ts3.ClientID, message string) error
	Close() error
}

// DialFunc establishes a fresh, fully set up query session.
type DialFunc func(ctx context.Context) (Source, error)

// Poller runs the keepalive/poll loop. Each iteration sends a keepalive,
// waits for the next event within the configured timeout, and feeds arrivals
// through the classifier into the dispatcher. Query failures trigger a
// bounded-backoff reconnect; an exhausted backoff budget ends the loop with
// an error.
type Poller struct {
	dial       DialFunc
	timeout    time.Duration
	reconnect  config.ReconnectConfig
	classifier *Classifier
	dispatcher *Dispatcher
	log        *zerolog.Logger

	mu     sync.RWMutex
	source Source
}

// NewPoller wires the loop. It does not connect; Run does.
func NewPoller(dial DialFunc, eventTimeout time.Duration, rc config.ReconnectConfig, classifier *Classifier, dispatcher *Dispatcher, logger *zerolog.Logger) *Poller {
	return &Poller{
		dial:       dial,
		timeout:    eventTimeout,
		reconnect:  rc,
		classifier: classifier,
		dispatcher: dispatcher,
		log:        logger,
	}
}

// Source returns the current query session, or nil while disconnected.
// Command handlers use it for live lookups that must bypass the presence
// cache.
func (p *Poller) Source() Source {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.source
}

// Run connects and polls until ctx ends or the reconnect budget is spent.
func (p *Poller) Run(ctx context.Context) error {
	if err := p.connect(ctx); err != nil {
		return fmt.Errorf("connect voice server: %w", err)
	}
	defer p.closeSource()

	// Closing the session unblocks a pending event wait on shutdown.
	go func() {
		<-ctx.Done()
		p.closeSource()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		src := p.Source()
		if src == nil {
			return nil
		}

		// One keepalive per iteration: the session never idles longer than
		// one event-wait timeout, even under event floods.
		if err := src.SendKeepalive(); err != nil {
			if err := p.recover(ctx, err); err != nil {
				return err
			}
			continue
		}

		ev, err := src.WaitForEvent(p.timeout)
		if errors.Is(err, ts3.ErrTimeout) {
			// Idle window, not an error.
			continue
		}
		if err != nil {
			if err := p.recover(ctx, err); err != nil {
				return err
			}
			continue
		}

		if text, ok := p.classifier.Classify(src, ev); ok {
			p.log.Info().Str("text", text).Msg("dispatching notification")
			p.dispatcher.Dispatch(ctx, text)
		}
	}
}

// recover handles a query failure: nil when ctx ended (clean shutdown),
// otherwise a reconnect attempt whose own failure ends the loop.
func (p *Poller) recover(ctx context.Context, cause error) error {
	if ctx.Err() != nil {
		return nil
	}
	p.log.Warn().Err(cause).Msg("query session failed, reconnecting")
	if err := p.connect(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("reconnect voice server: %w", err)
	}
	return nil
}

// connect dials with exponential backoff until the budget is exhausted.
// Presence entries survive a reconnect: events missed while disconnected
// resolve later through the anonymous-departure fallback.
func (p *Poller) connect(ctx context.Context) error {
	p.closeSource()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.reconnect.InitialInterval
	bo.MaxInterval = p.reconnect.MaxInterval
	bo.MaxElapsedTime = p.reconnect.MaxElapsed

	attempt := 0
	op := func() error {
		attempt++
		src, err := p.dial(ctx)
		if err != nil {
			p.log.Warn().Err(err).Int("attempt", attempt).Msg("voice server connect failed")
			return err
		}
		p.mu.Lock()
		p.source = src
		p.mu.Unlock()
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return err
	}
	p.log.Info().Int("attempt", attempt).Msg("voice server connected")
	return nil
}

func (p *Poller) closeSource() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.source != nil {
		p.source.Close()
		p.source = nil
	}
}
