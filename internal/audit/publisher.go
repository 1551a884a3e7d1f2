// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package audit

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/edgeguard/internal/logging"
)

// DefaultTopic is the topic stored events are published on.
const DefaultTopic = "edgeguard.audit"

// NewGoChannel returns the in-process pub/sub used to fan stored events out
// to live subscribers such as the websocket stream. Slow subscribers do not
// block the audit writer as long as buffer has room.
func NewGoChannel(buffer int) *gochannel.GoChannel {
	if buffer <= 0 {
		buffer = 256
	}
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            int64(buffer),
		BlockPublishUntilSubscriberAck: false,
	}, logging.NewWatermillAdapter())
}

// DecodeMessage unmarshals a published audit event.
func DecodeMessage(msg *message.Message) (Event, error) {
	var e Event
	err := json.Unmarshal(msg.Payload, &e)
	return e, err
}

// FanOut publishes every message to each publisher in turn. It lets one
// audit logger feed both the local stream and a remote broker.
type FanOut []message.Publisher

// Publish implements message.Publisher. The first error is returned after
// every publisher has been tried.
func (f FanOut) Publish(topic string, msgs ...*message.Message) error {
	var first error
	for _, p := range f {
		if err := p.Publish(topic, msgs...); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close implements message.Publisher.
func (f FanOut) Close() error {
	var first error
	for _, p := range f {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
