package client

import (
	"context"
	"net/url"

	"github.com/coder/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/sandboxsync/cmd/util"
	"github.com/sidkik/sandboxsync/pkg/broadcast"
	"github.com/sidkik/sandboxsync/pkg/errors"
	"github.com/sidkik/sandboxsync/pkg/sync/server"
	"github.com/sidkik/sandboxsync/pkg/version"
)

// Client is a remote context attached to a sync bridge.
type Client struct {
	conn     *websocket.Conn
	messages chan broadcast.Message
	cancel   context.CancelFunc
}

// Dial attaches to the bridge at `addr`, which should be a ws:// or wss://
// URL of the bridge's WebSocket endpoint. Messages larger than `readLimit`
// bytes end the connection. Zero uses server.DefaultReadLimit, and -1
// disables the limit.
func Dial(ctx context.Context, addr string, readLimit int64) (*Client, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return nil, errors.WithContext(err, "parse address")
	}
	query := u.Query()
	query.Set(server.VersionParam, version.ProtocolVersion)
	u.RawQuery = query.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, errors.WithContext(err, "dial")
	}
	if readLimit == 0 {
		readLimit = server.DefaultReadLimit
	}
	conn.SetReadLimit(readLimit)

	readCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:     conn,
		messages: make(chan broadcast.Message, broadcast.DefaultInboxSize),
		cancel:   cancel,
	}
	go func() {
		defer util.HandlePanic()
		c.readLoop(readCtx)
	}()
	return c, nil
}

// Publish sends a message to every other context attached to the bridge.
func (c *Client) Publish(ctx context.Context, msg broadcast.Message) error {
	data, err := broadcast.Encode(msg)
	if err != nil {
		return errors.WithContext(err, "encode")
	}

	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

// Messages returns the messages published by the other contexts. The
// channel is closed once the connection ends.
func (c *Client) Messages() <-chan broadcast.Message {
	return c.messages
}

// Close detaches from the bridge.
func (c *Client) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	c.cancel()
	return err
}

func (c *Client) readLoop(ctx context.Context) {
	defer close(c.messages)

	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.WithError(err).Debug("Connection to bridge ended")
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		msg, err := broadcast.Decode(data)
		if err != nil {
			log.WithError(err).Warn("Ignoring malformed message from bridge")
			continue
		}

		select {
		case c.messages <- msg:
		case <-ctx.Done():
			return
		}
	}
}
