package ts3

import "strings"

// Reason codes carried on left-view notifications.
const (
	ReasonJoined      = 0
	ReasonMoved       = 1
	ReasonTimeout     = 3
	ReasonChannelKick = 4
	ReasonServerKick  = 5
	ReasonBan         = 6
	ReasonDisconnect  = 8
)

// ClientID identifies a connected query/voice session. Unique among
// currently connected clients only; a reconnecting client gets a new one.
type ClientID int

// ClientInfo is a point-in-time snapshot of a connected client.
type ClientInfo struct {
	ID       ClientID
	Nickname string
	Type     string
}

// IsHuman reports whether the client is a genuine voice client rather than a
// server query or bot session.
func (c ClientInfo) IsHuman() bool {
	return c.Type == "0"
}

// Channel is a voice channel as listed by the server.
type Channel struct {
	ID   int
	Name string
}

// Event is a notification pushed by the server over the query session.
type Event interface {
	event()
}

// ClientEntered reports a client connecting to the server.
type ClientEntered struct {
	ClientID        ClientID
	TargetChannelID int
}

// ClientLeft reports a client disconnecting (voluntarily, by timeout, or any
// other non-kick reason).
type ClientLeft struct {
	ClientID ClientID
	ReasonID int
}

// ClientKicked reports a client removed by a channel or server kick.
type ClientKicked struct {
	ClientID        ClientID
	TargetChannelID int
	ReasonID        int
}

// ClientMoved reports a client moved to another channel by someone else.
type ClientMoved struct {
	ClientID        ClientID
	TargetChannelID int
}

// ClientMovedSelf reports a client switching channels on its own.
type ClientMovedSelf struct {
	ClientID        ClientID
	TargetChannelID int
}

// Unknown carries a notification line the client does not recognize.
type Unknown struct {
	Raw string
}

func (ClientEntered) event()   {}
func (ClientLeft) event()      {}
func (ClientKicked) event()    {}
func (ClientMoved) event()     {}
func (ClientMovedSelf) event() {}
func (Unknown) event()         {}

// parseNotification maps a notify* line to a typed event. Lines and reason
// codes it does not recognize come back as Unknown so callers can log and
// move on.
func parseNotification(line string) Event {
	name, rest, _ := strings.Cut(line, " ")
	rec := parseRecord(rest)

	switch name {
	case "notifycliententerview":
		return ClientEntered{
			ClientID:        ClientID(rec.int("clid")),
			TargetChannelID: rec.int("ctid"),
		}
	case "notifyclientleftview":
		reason := rec.int("reasonid")
		if reason == ReasonChannelKick || reason == ReasonServerKick {
			return ClientKicked{
				ClientID:        ClientID(rec.int("clid")),
				TargetChannelID: rec.int("ctid"),
				ReasonID:        reason,
			}
		}
		return ClientLeft{
			ClientID: ClientID(rec.int("clid")),
			ReasonID: reason,
		}
	case "notifyclientmoved":
		if rec.has("invokerid") {
			return ClientMoved{
				ClientID:        ClientID(rec.int("clid")),
				TargetChannelID: rec.int("ctid"),
			}
		}
		return ClientMovedSelf{
			ClientID:        ClientID(rec.int("clid")),
			TargetChannelID: rec.int("ctid"),
		}
	default:
		return Unknown{Raw: line}
	}
}
