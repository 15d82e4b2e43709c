/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/adaptive_scheduler/internal/events"
)

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	Token         string
	SubjectPrefix string
	NodeID        string

	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		SubjectPrefix: "adsched.events",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSBus publishes run events on NATS subjects and relays events from
// other nodes into a local bus. Without a connection it behaves like the
// local bus alone.
type NATSBus struct {
	logger zerolog.Logger
	local  *events.Bus
	conn   *nats.Conn
	sub    *nats.Subscription
	cfg    NATSConfig
}

// NewNATSBus connects to NATS. Connection failures are logged and the bus
// falls back to in-process delivery.
func NewNATSBus(cfg NATSConfig, logger zerolog.Logger) *NATSBus {
	defaults := DefaultNATSConfig()
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = defaults.SubjectPrefix
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = defaults.ReconnectWait
	}
	if cfg.NodeID == "" {
		cfg.NodeID = NodeID()
	}

	nb := &NATSBus{
		logger: logger.With().Str("component", "eventbus").Str("transport", "nats").Logger(),
		local:  events.NewBus(),
		cfg:    cfg,
	}
	if cfg.URL == "" {
		nb.logger.Info().Msg("no NATS url configured, using in-memory event bus")
		return nb
	}

	opts := []nats.Option{
		nats.Name("adaptive-scheduler " + cfg.NodeID),
		nats.Timeout(cfg.Timeout),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			nb.logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			nb.logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		nb.logger.Warn().Err(err).Str("url", cfg.URL).Msg("NATS connection failed, using in-memory fallback")
		return nb
	}
	nb.conn = conn

	sub, err := conn.Subscribe(cfg.SubjectPrefix+".>", nb.relay)
	if err != nil {
		nb.logger.Warn().Err(err).Msg("NATS subscribe failed, remote events will not be relayed")
	} else {
		nb.sub = sub
	}

	nb.logger.Info().Str("url", cfg.URL).Str("node_id", cfg.NodeID).Msg("NATS event bus connected")
	return nb
}

// Subject maps an event type to its NATS subject.
func (nb *NATSBus) Subject(eventType events.EventType) string {
	return nb.cfg.SubjectPrefix + "." + string(eventType)
}

// Connected reports whether a live NATS connection backs the bus.
func (nb *NATSBus) Connected() bool {
	return nb.conn != nil && nb.conn.IsConnected()
}

// Subscribe registers a local subscriber. Remote events reach it through
// the relay.
func (nb *NATSBus) Subscribe(eventType events.EventType) events.Subscriber {
	return nb.local.Subscribe(eventType)
}

// Unsubscribe removes a local subscriber.
func (nb *NATSBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	nb.local.Unsubscribe(eventType, sub)
}

// Publish delivers locally and, when connected, on the event's subject.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.local.Publish(eventType, payload)
	if nb.conn == nil {
		return
	}

	data, err := marshalMessage(eventType, payload, nb.cfg.NodeID)
	if err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to marshal event")
		return
	}
	if err := nb.conn.Publish(nb.Subject(eventType), data); err != nil {
		nb.logger.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to publish to NATS")
	}
}

func (nb *NATSBus) relay(msg *nats.Msg) {
	m, err := unmarshalMessage(msg.Data)
	if err != nil {
		nb.logger.Error().Err(err).Str("subject", msg.Subject).Msg("dropping malformed event")
		return
	}
	if m.NodeID == nb.cfg.NodeID {
		return
	}
	if want := nb.Subject(m.EventType); !strings.EqualFold(want, msg.Subject) {
		nb.logger.Warn().Str("subject", msg.Subject).Str("event_type", string(m.EventType)).Msg("event type does not match subject")
	}
	nb.local.Publish(m.EventType, m.Payload)
}

// Close drains the subscription and closes the connection.
func (nb *NATSBus) Close() error {
	if nb.conn == nil {
		return nil
	}
	if err := nb.conn.Drain(); err != nil {
		nb.conn.Close()
		return fmt.Errorf("drain nats connection: %w", err)
	}
	return nil
}
