// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

//go:build !nats

package audit

import (
	"errors"

	"github.com/ThreeDotsLabs/watermill/message"
)

// NATSAvailable reports whether this binary was built with NATS support.
const NATSAvailable = false

// NewNATSPublisher is unavailable without the nats build tag.
func NewNATSPublisher(string) (message.Publisher, error) {
	return nil, errors.New("NATS audit publisher not available: build with -tags=nats")
}
