// Package commands answers chat commands that query or act on the voice
// server. Handlers are stateless per invocation and always read live server
// state rather than the bridge's presence cache, so listings reflect ground
// truth even when the cache is stale.
package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/zedjones/tsbridge/internal/ts3"
)

// Replies for degraded situations. User input errors get a specific text;
// voice-server trouble gets one generic line instead of a stack trace.
const (
	replyMalformed   = "Command was improperly formatted!"
	replyUnreachable = "Could not reach the voice server."
)

// VoiceActor is the slice of the query session command handlers need.
type VoiceActor interface {
	ClientList() ([]ts3.ClientInfo, error)
	Poke(id ts3.ClientID, message string) error
}

// SourceFunc returns the current query session, or nil while the bridge is
// disconnected from the voice server.
type SourceFunc func() VoiceActor

// Router matches inbound chat text against the known command prefixes and
// runs the matching handler.
type Router struct {
	source SourceFunc
	log    *zerolog.Logger
}

// NewRouter builds a router over the given session accessor.
func NewRouter(source SourceFunc, logger *zerolog.Logger) *Router {
	return &Router{source: source, log: logger}
}

// Handle runs the command in text, if any. It returns the reply to send back
// to the originating room and whether the text was a command at all.
func (r *Router) Handle(ctx context.Context, room, text string) (string, bool) {
	text = strings.TrimSpace(text)

	var (
		name string
		args string
	)
	switch {
	case text == "!ts" || strings.HasPrefix(text, "!ts "):
		name, args = "ts", strings.TrimSpace(strings.TrimPrefix(text, "!ts"))
	case text == "!poke" || strings.HasPrefix(text, "!poke "):
		name, args = "poke", strings.TrimSpace(strings.TrimPrefix(text, "!poke"))
	default:
		return "", false
	}

	logger := r.log.With().
		Str("command", name).
		Str("room", room).
		Str("correlation_id", uuid.NewString()).
		Logger()

	src := r.source()
	if src == nil {
		logger.Warn().Msg("command received while disconnected")
		return replyUnreachable, true
	}

	switch name {
	case "ts":
		return r.listOnline(&logger, src), true
	default:
		return r.poke(ctx, &logger, src, args), true
	}
}

// listOnline answers !ts with the names of genuine clients currently online.
func (r *Router) listOnline(logger *zerolog.Logger, src VoiceActor) string {
	clients, err := src.ClientList()
	if err != nil {
		logger.Warn().Err(err).Msg("client list failed")
		return replyUnreachable
	}

	names := make([]string, 0, len(clients))
	for _, c := range clients {
		if c.IsHuman() && c.Nickname != "" {
			names = append(names, c.Nickname)
		}
	}
	logger.Debug().Int("online", len(names)).Msg("answered listing")
	return "Users online: " + strings.Join(names, ", ")
}

// poke answers !poke "<name>" <message>: resolve the target against the live
// client list (case-insensitive, first match wins) and poke it.
func (r *Router) poke(_ context.Context, logger *zerolog.Logger, src VoiceActor, args string) string {
	name, message, err := parsePokeArgs(args)
	if err != nil {
		logger.Debug().Err(err).Msg("rejected malformed poke")
		return replyMalformed
	}

	clients, err := src.ClientList()
	if err != nil {
		logger.Warn().Err(err).Msg("client list failed")
		return replyUnreachable
	}

	for _, c := range clients {
		if !strings.EqualFold(c.Nickname, name) {
			continue
		}
		if err := src.Poke(c.ID, message); err != nil {
			logger.Warn().Err(err).Int("clid", int(c.ID)).Msg("poke failed")
			return replyUnreachable
		}
		logger.Debug().Int("clid", int(c.ID)).Msg("poked client")
		return fmt.Sprintf("Poked %s.", c.Nickname)
	}

	return fmt.Sprintf("%s is not online!", name)
}

// parsePokeArgs splits `"<name>" <message>` on its quotes. Anything that
// does not carry a quoted name and a message body is malformed.
func parsePokeArgs(args string) (name, message string, err error) {
	parts := strings.SplitN(args, `"`, 3)
	if len(parts) != 3 {
		return "", "", fmt.Errorf("expected quoted target name in %q", args)
	}
	if strings.TrimSpace(parts[0]) != "" {
		return "", "", fmt.Errorf("unexpected text before target name in %q", args)
	}
	name = parts[1]
	message = strings.TrimSpace(parts[2])
	if name == "" || message == "" {
		return "", "", fmt.Errorf("empty target or message in %q", args)
	}
	return name, message, nil
}
