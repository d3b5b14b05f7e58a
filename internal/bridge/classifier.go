package bridge

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/zedjones/tsbridge/internal/ts3"
)

// VoiceQuerier is the point-lookup slice of the query session the classifier
// needs to resolve an event into human-readable text.
type VoiceQuerier interface {
	ClientInfo(id ts3.ClientID) (ts3.ClientInfo, error)
	ChannelList() ([]ts3.Channel, error)
}

// unknownChannel is the placeholder when a move target cannot be resolved.
const unknownChannel = "a different channel"

// Classifier turns raw voice-server events into notification text and the
// matching presence mutation. It never fails the caller: lookups that race
// against a vanishing client drop that event's notification and leave the
// store untouched.
type Classifier struct {
	presence *Presence
	log      *zerolog.Logger
}

// NewClassifier builds a classifier over the given presence store.
func NewClassifier(presence *Presence, logger *zerolog.Logger) *Classifier {
	return &Classifier{presence: presence, log: logger}
}

// Classify resolves one event against q. It returns the notification text
// and whether one should be sent.
func (c *Classifier) Classify(q VoiceQuerier, ev ts3.Event) (string, bool) {
	switch ev := ev.(type) {
	case ts3.ClientEntered:
		info, ok := c.lookupHuman(q, ev.ClientID)
		if !ok {
			return "", false
		}
		c.presence.Put(ev.ClientID, info.Nickname)
		return fmt.Sprintf("%s connected", info.Nickname), true

	case ts3.ClientLeft:
		name, known := c.presence.Remove(ev.ClientID)
		if !known {
			// Arrival was never observed; announce the departure anyway.
			return "Somebody disconnected", true
		}
		return fmt.Sprintf("%s disconnected", name), true

	case ts3.ClientKicked:
		name, known := c.presence.Remove(ev.ClientID)
		if !known {
			return "Somebody was kicked", true
		}
		return fmt.Sprintf("%s was kicked", name), true

	case ts3.ClientMoved:
		return c.classifyMove(q, ev.ClientID, ev.TargetChannelID)

	case ts3.ClientMovedSelf:
		return c.classifyMove(q, ev.ClientID, ev.TargetChannelID)

	case ts3.Unknown:
		c.log.Debug().Str("raw", ev.Raw).Msg("ignoring unknown event")
		return "", false

	default:
		c.log.Warn().Type("event", ev).Msg("unhandled event kind")
		return "", false
	}
}

// classifyMove resolves a channel switch. Moves never change online state,
// so the presence store is untouched.
func (c *Classifier) classifyMove(q VoiceQuerier, id ts3.ClientID, targetChannelID int) (string, bool) {
	info, ok := c.lookupHuman(q, id)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%s moved to %s", info.Nickname, c.channelName(q, targetChannelID)), true
}

// lookupHuman fetches client info and filters out query/bot sessions. A
// failed lookup is logged and dropped; the bridge stays up even when one
// notification is lost to the event/lookup race.
func (c *Classifier) lookupHuman(q VoiceQuerier, id ts3.ClientID) (ts3.ClientInfo, bool) {
	info, err := q.ClientInfo(id)
	if err != nil {
		if ts3.IsNotFound(err) {
			c.log.Debug().Int("clid", int(id)).Msg("client vanished before lookup")
		} else {
			c.log.Warn().Err(err).Int("clid", int(id)).Msg("client lookup failed")
		}
		return ts3.ClientInfo{}, false
	}
	if !info.IsHuman() {
		return ts3.ClientInfo{}, false
	}
	return info, true
}

func (c *Classifier) channelName(q VoiceQuerier, channelID int) string {
	channels, err := q.ChannelList()
	if err != nil {
		c.log.Warn().Err(err).Msg("channel list failed")
		return unknownChannel
	}
	for _, ch := range channels {
		if ch.ID == channelID {
			return ch.Name
		}
	}
	return unknownChannel
}
