// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package websocket

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/edgeguard/internal/audit"
	"github.com/tomtom215/edgeguard/internal/logging"
)

// Subscriber forwards published audit events to a Hub.
type Subscriber struct {
	hub   *Hub
	sub   message.Subscriber
	topic string
}

// NewSubscriber returns a bridge from topic on sub to hub.
func NewSubscriber(hub *Hub, sub message.Subscriber, topic string) *Subscriber {
	if topic == "" {
		topic = audit.DefaultTopic
	}
	return &Subscriber{hub: hub, sub: sub, topic: topic}
}

// String implements fmt.Stringer for suture logs.
func (s *Subscriber) String() string { return "audit-stream-subscriber" }

// Serve consumes the topic until ctx is cancelled.
func (s *Subscriber) Serve(ctx context.Context) error {
	messages, err := s.sub.Subscribe(ctx, s.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.topic, err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("subscription to %s closed", s.topic)
			}
			s.forward(msg)
		}
	}
}

func (s *Subscriber) forward(msg *message.Message) {
	defer msg.Ack()

	risk := audit.RiskLevel(msg.Metadata.Get("risk_level"))
	if !risk.Valid() {
		e, err := audit.DecodeMessage(msg)
		if err != nil {
			logging.Warn().Err(err).Str("message_id", msg.UUID).Msg("Dropping undecodable audit message")
			return
		}
		risk = e.RiskLevel
	}
	s.hub.BroadcastAuditEvent(msg.Payload, risk)
}
