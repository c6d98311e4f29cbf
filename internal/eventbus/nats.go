/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package eventbus bridges the in-process event bus onto NATS so that
// multiple instances see each other's plan and cache events.
package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/studyforge/studyforge/internal/events"
)

// SubjectPrefix is prepended to the event type to form the NATS subject.
const SubjectPrefix = "studyforge.events."

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig(url string) NATSConfig {
	return NATSConfig{
		URL:           url,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NATSBus fans events out over NATS while keeping local delivery on the
// in-memory bus. When NATS is unreachable it degrades to local-only.
type NATSBus struct {
	conn   *nats.Conn
	local  *events.Bus
	logger zerolog.Logger
	nodeID string

	mu       sync.Mutex
	natsSubs map[events.EventType]*nats.Subscription
}

// NewNATSBus connects to NATS and wraps the given local bus. A connection
// failure is not fatal; events then stay in-process.
func NewNATSBus(cfg NATSConfig, local *events.Bus, logger zerolog.Logger) (*NATSBus, error) {
	host, _ := os.Hostname()
	bus := &NATSBus{
		local:    local,
		logger:   logger.With().Str("component", "eventbus").Logger(),
		nodeID:   host + "-" + uuid.NewString()[:8],
		natsSubs: make(map[events.EventType]*nats.Subscription),
	}

	if cfg.URL == "" {
		bus.logger.Info().Msg("no NATS URL configured, events stay in-process")
		return bus, nil
	}

	conn, err := nats.Connect(cfg.URL,
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			bus.logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			bus.logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		bus.logger.Warn().Err(err).Str("url", cfg.URL).Msg("NATS unavailable, events stay in-process")
		return bus, nil
	}

	bus.conn = conn
	bus.logger.Info().Str("url", cfg.URL).Str("node", bus.nodeID).Msg("NATS event bus connected")
	return bus, nil
}

// Subscribe registers a local subscriber and, when connected, mirrors the
// subject from NATS so remote publishes are delivered too.
func (nb *NATSBus) Subscribe(eventType events.EventType) events.Subscriber {
	sub := nb.local.Subscribe(eventType)
	nb.ensureNATSSubscription(eventType)
	return sub
}

// Publish delivers locally and, when connected, to the NATS subject.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.local.Publish(eventType, payload)

	if nb.conn == nil {
		return
	}

	data, err := marshalMessage(eventType, payload, nb.nodeID)
	if err != nil {
		nb.logger.Warn().Err(err).Str("event", string(eventType)).Msg("failed to marshal event")
		return
	}
	if err := nb.conn.Publish(SubjectPrefix+string(eventType), data); err != nil {
		nb.logger.Warn().Err(err).Str("event", string(eventType)).Msg("failed to publish event to NATS")
	}
}

// Unsubscribe removes a local subscriber.
func (nb *NATSBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	nb.local.Unsubscribe(eventType, sub)
}

// Close drains the NATS connection.
func (nb *NATSBus) Close() error {
	if nb.conn == nil {
		return nil
	}

	nb.mu.Lock()
	for _, sub := range nb.natsSubs {
		_ = sub.Unsubscribe()
	}
	nb.natsSubs = make(map[events.EventType]*nats.Subscription)
	nb.mu.Unlock()

	if err := nb.conn.Drain(); err != nil {
		return fmt.Errorf("drain nats connection: %w", err)
	}
	return nil
}

// ensureNATSSubscription mirrors one subject into the local bus, dropping
// messages this node published itself.
func (nb *NATSBus) ensureNATSSubscription(eventType events.EventType) {
	if nb.conn == nil {
		return
	}

	nb.mu.Lock()
	defer nb.mu.Unlock()
	if _, ok := nb.natsSubs[eventType]; ok {
		return
	}

	subject := SubjectPrefix + string(eventType)
	sub, err := nb.conn.Subscribe(subject, func(m *nats.Msg) {
		msg, err := unmarshalMessage(m.Data)
		if err != nil {
			nb.logger.Debug().Err(err).Str("subject", subject).Msg("dropping malformed event")
			return
		}
		if msg.NodeID == nb.nodeID {
			return
		}
		nb.local.Publish(msg.EventType, msg.Payload)
	})
	if err != nil {
		nb.logger.Warn().Err(err).Str("subject", subject).Msg("failed to subscribe to NATS subject")
		return
	}
	nb.natsSubs[eventType] = sub
}

// message is the wire format published to NATS.
type message struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

func marshalMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(message{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	})
}

func unmarshalMessage(data []byte) (*message, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal nats message: %w", err)
	}
	return &msg, nil
}
