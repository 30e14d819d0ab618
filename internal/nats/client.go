package nats

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/saviobatista/airshow-tracker/internal/types"
)

const (
	StreamName      = "TRACKER"
	SubjectPresence = "tracker.presence"
	SubjectMarkers  = "tracker.markers"
)

// Marker event actions
const (
	ActionAdd    = "add"
	ActionUpdate = "update"
	ActionRemove = "remove"
)

// JetStream is the subset of nats.JetStreamContext used by the client
type JetStream interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
	Subscribe(subj string, cb nats.MsgHandler, opts ...nats.SubOpt) (*nats.Subscription, error)
}

// Client represents a NATS client
type Client struct {
	conn *nats.Conn
	js   JetStream
	log  zerolog.Logger
}

// New creates a new NATS client
func New(url string) (*Client, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	// Create stream if it doesn't exist
	_, err = js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{"tracker.>"},
		Storage:  nats.FileStorage,
		MaxAge:   24 * time.Hour,
	})
	if err != nil && !strings.Contains(err.Error(), "stream name already in use") {
		nc.Close()
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return &Client{
		conn: nc,
		js:   js,
		log:  zerolog.Nop(),
	}, nil
}

// NewWithJetStream creates a client over an existing JetStream context
func NewWithJetStream(js JetStream) *Client {
	return &Client{js: js, log: zerolog.Nop()}
}

// WithLogger sets the logger used for subscription errors
func (c *Client) WithLogger(log zerolog.Logger) *Client {
	c.log = log
	return c
}

func (c *Client) publish(subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	_, err = c.js.Publish(subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}

// PublishPresence publishes a presence update
func (c *Client) PublishPresence(update *types.PresenceUpdate) error {
	return c.publish(SubjectPresence, update)
}

// PublishMarker publishes a marker event
func (c *Client) PublishMarker(event *types.MarkerEvent) error {
	return c.publish(SubjectMarkers, event)
}

// SubscribePresence subscribes to presence updates
func (c *Client) SubscribePresence(handler func(*types.PresenceUpdate)) error {
	_, err := c.js.Subscribe(SubjectPresence, func(msg *nats.Msg) {
		var update types.PresenceUpdate
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			c.log.Error().Err(err).Str("subject", msg.Subject).Msg("Error unmarshaling presence update")
			return
		}
		handler(&update)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	return nil
}

// SubscribeMarkers subscribes to marker events
func (c *Client) SubscribeMarkers(handler func(*types.MarkerEvent)) error {
	_, err := c.js.Subscribe(SubjectMarkers, func(msg *nats.Msg) {
		var event types.MarkerEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			c.log.Error().Err(err).Str("subject", msg.Subject).Msg("Error unmarshaling marker event")
			return
		}
		handler(&event)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	return nil
}

// Close closes the NATS connection
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
