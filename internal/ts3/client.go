// Package ts3 implements the TeamSpeak ServerQuery protocol surface the
// bridge consumes: a logged-in query session that answers point lookups and
// yields server notifications as typed events.
package ts3

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	greetingTimeout = 10 * time.Second
	writeTimeout    = 10 * time.Second
	execTimeout     = 10 * time.Second
)

// Client is a single ServerQuery session. A background reader splits incoming
// lines into command responses and notifications, so the poll loop can wait
// for events while chat command handlers run lookups on the same session.
// All methods are safe for concurrent use.
type Client struct {
	conn net.Conn
	log  *zerolog.Logger

	cmdMu  sync.Mutex // one command exchange in flight at a time
	wMu    sync.Mutex // serializes raw writes (keepalive vs command)
	respCh chan string

	events *eventQueue

	closeOnce sync.Once
	done      chan struct{}
	errMu     sync.Mutex
	err       error
}

// Dial opens a query session and consumes the server greeting. The caller
// still has to Login and Use before registering for events.
func Dial(ctx context.Context, addr string, logger *zerolog.Logger) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, transportError("dial", err)
	}

	reader := bufio.NewReader(conn)
	if err := readGreeting(conn, reader); err != nil {
		conn.Close()
		return nil, err
	}

	c := &Client{
		conn:   conn,
		log:    logger,
		respCh: make(chan string),
		events: newEventQueue(),
		done:   make(chan struct{}),
	}
	go c.readLoop(reader)
	return c, nil
}

// Connect dials, logs in, selects the virtual server, and registers for
// server and channel events. This is the full session setup the bridge needs.
func Connect(ctx context.Context, addr, username, password string, serverID int, logger *zerolog.Logger) (*Client, error) {
	c, err := Dial(ctx, addr, logger)
	if err != nil {
		return nil, err
	}
	if err := c.Login(username, password); err != nil {
		c.Close()
		return nil, fmt.Errorf("login: %w", err)
	}
	if err := c.Use(serverID); err != nil {
		c.Close()
		return nil, fmt.Errorf("select server %d: %w", serverID, err)
	}
	if err := c.RegisterEvents(); err != nil {
		c.Close()
		return nil, fmt.Errorf("register events: %w", err)
	}
	return c, nil
}

func readGreeting(conn net.Conn, reader *bufio.Reader) error {
	if err := conn.SetReadDeadline(time.Now().Add(greetingTimeout)); err != nil {
		return transportError("greeting", err)
	}
	banner, err := reader.ReadString('\n')
	if err != nil {
		return transportError("greeting", err)
	}
	if !strings.HasPrefix(strings.TrimSpace(banner), "TS3") {
		return &QueryError{ID: -1, Msg: fmt.Sprintf("unexpected greeting %q", strings.TrimSpace(banner))}
	}
	// Second banner line is a welcome notice; discard it.
	if _, err := reader.ReadString('\n'); err != nil {
		return transportError("greeting", err)
	}
	return conn.SetReadDeadline(time.Time{})
}

// readLoop routes incoming lines: notifications to the event queue,
// everything else to the in-flight command exchange.
func (c *Client) readLoop(reader *bufio.Reader) {
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			c.shutdown(transportError("read", err))
			return
		}
		// The server terminates lines with "\n\r", so trim both ends.
		line = strings.Trim(line, "\r\n")
		if line == "" {
			continue
		}
		if isNotifyLine(line) {
			ev := parseNotification(line)
			if _, unknown := ev.(Unknown); unknown {
				c.log.Debug().Str("line", line).Msg("unrecognized notification")
			}
			c.events.push(ev)
			continue
		}
		select {
		case c.respCh <- line:
		case <-c.done:
			return
		}
	}
}

// WaitForEvent returns the next server notification, ErrTimeout after the
// bound, or the session's terminal error if the connection has failed.
func (c *Client) WaitForEvent(timeout time.Duration) (Event, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		if ev, ok := c.events.pop(); ok {
			return ev, nil
		}
		select {
		case <-c.events.signal:
		case <-timer.C:
			return nil, ErrTimeout
		case <-c.done:
			return nil, c.terminalErr()
		}
	}
}

// SendKeepalive writes a blank line. The server ignores it but resets its
// idle timer.
func (c *Client) SendKeepalive() error {
	return c.write("\n")
}

// Login authenticates the query session.
func (c *Client) Login(username, password string) error {
	_, err := c.exec("login " + Escape(username) + " " + Escape(password))
	return err
}

// Use selects the virtual server to operate on.
func (c *Client) Use(serverID int) error {
	_, err := c.exec(fmt.Sprintf("use sid=%d", serverID))
	return err
}

// RegisterEvents subscribes to server-wide and channel enter/leave/move
// notifications.
func (c *Client) RegisterEvents() error {
	if _, err := c.exec("servernotifyregister event=server"); err != nil {
		return err
	}
	_, err := c.exec("servernotifyregister event=channel id=0")
	return err
}

// ClientInfo fetches a live snapshot of one client. Vanished clients surface
// as a not-found QueryError (see IsNotFound).
func (c *Client) ClientInfo(id ClientID) (ClientInfo, error) {
	recs, err := c.exec(fmt.Sprintf("clientinfo clid=%d", id))
	if err != nil {
		return ClientInfo{}, err
	}
	if len(recs) == 0 {
		return ClientInfo{}, &QueryError{ID: -1, Msg: "empty clientinfo response"}
	}
	return ClientInfo{
		ID:       id,
		Nickname: recs[0].str("client_nickname"),
		Type:     recs[0].str("client_type"),
	}, nil
}

// ClientList fetches all currently connected clients, query sessions included.
func (c *Client) ClientList() ([]ClientInfo, error) {
	recs, err := c.exec("clientlist")
	if err != nil {
		return nil, err
	}
	clients := make([]ClientInfo, 0, len(recs))
	for _, rec := range recs {
		clients = append(clients, ClientInfo{
			ID:       ClientID(rec.int("clid")),
			Nickname: rec.str("client_nickname"),
			Type:     rec.str("client_type"),
		})
	}
	return clients, nil
}

// ChannelList fetches the server's channel tree as a flat list.
func (c *Client) ChannelList() ([]Channel, error) {
	recs, err := c.exec("channellist")
	if err != nil {
		return nil, err
	}
	channels := make([]Channel, 0, len(recs))
	for _, rec := range recs {
		channels = append(channels, Channel{
			ID:   rec.int("cid"),
			Name: rec.str("channel_name"),
		})
	}
	return channels, nil
}

// Poke sends a poke message to one client.
func (c *Client) Poke(id ClientID, message string) error {
	_, err := c.exec(fmt.Sprintf("clientpoke clid=%d msg=%s", id, Escape(message)))
	return err
}

// Close tears the session down. Safe to call more than once.
func (c *Client) Close() error {
	c.shutdown(ErrClosed)
	return nil
}

// exec runs one command exchange: write the line, then collect the response
// up to its trailing status line.
func (c *Client) exec(cmd string) ([]record, error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	select {
	case <-c.done:
		return nil, c.terminalErr()
	default:
	}

	if err := c.write(cmd + "\n"); err != nil {
		return nil, err
	}

	timer := time.NewTimer(execTimeout)
	defer timer.Stop()

	var data string
	for {
		select {
		case line := <-c.respCh:
			if !isResultLine(line) {
				data = line
				continue
			}
			if qe := parseResultLine(line); qe != nil {
				return nil, qe
			}
			if data == "" {
				return nil, nil
			}
			return parseRecords(data), nil
		case <-timer.C:
			err := transportError("exec", errors.New("response timeout"))
			c.shutdown(err)
			return nil, err
		case <-c.done:
			return nil, c.terminalErr()
		}
	}
}

func (c *Client) write(s string) error {
	c.wMu.Lock()
	defer c.wMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return transportError("write", err)
	}
	if _, err := io.WriteString(c.conn, s); err != nil {
		err := transportError("write", err)
		c.shutdown(err)
		return err
	}
	return nil
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()
		c.conn.Close()
		close(c.done)
	})
}

func (c *Client) terminalErr() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		return ErrClosed
	}
	return c.err
}

// eventQueue is an unbounded FIFO so the reader never blocks behind a slow
// consumer (a blocked reader would also stall command responses).
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	signal chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{signal: make(chan struct{}, 1)}
}

func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *eventQueue) pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	ev := q.items[0]
	q.items = q.items[1:]
	return ev, true
}
