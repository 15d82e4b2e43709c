/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/friendsincode/adaptive_scheduler/internal/events"
)

// Transports accepted by New.
const (
	TransportLocal = "local"
	TransportNATS  = "nats"
	TransportRedis = "redis"
)

// Bus is the event bus used by the API and the run observer.
type Bus interface {
	events.Publisher
	Subscribe(eventType events.EventType) events.Subscriber
	Unsubscribe(eventType events.EventType, sub events.Subscriber)
	Close() error
}

type localBus struct {
	*events.Bus
}

func (localBus) Close() error { return nil }

// Local wraps an in-process bus.
func Local() Bus {
	return localBus{events.NewBus()}
}

// New builds the bus for the named transport.
func New(transport string, natsCfg NATSConfig, redisCfg RedisConfig, logger zerolog.Logger) (Bus, error) {
	switch transport {
	case "", TransportLocal:
		return Local(), nil
	case TransportNATS:
		return NewNATSBus(natsCfg, logger), nil
	case TransportRedis:
		return NewRedisBus(redisCfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown event transport %q", transport)
	}
}
