/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/adaptive_scheduler/internal/events"
)

func receive(t *testing.T, sub events.Subscriber) events.Payload {
	t.Helper()
	select {
	case p := <-sub:
		return p
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return nil
	}
}

func TestMessageRoundTrip(t *testing.T) {
	data, err := marshalMessage(events.EventRunCompleted, events.Payload{"run_id": "r1"}, "node-a")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	msg, err := unmarshalMessage(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.EventType != events.EventRunCompleted || msg.NodeID != "node-a" || msg.MessageID == "" {
		t.Fatalf("unexpected envelope %+v", msg)
	}
	if msg.Payload["run_id"] != "r1" {
		t.Fatalf("payload lost: %v", msg.Payload)
	}

	for _, bad := range []string{"{", `{"payload":{}}`} {
		if _, err := unmarshalMessage([]byte(bad)); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestNewSelectsTransport(t *testing.T) {
	logger := zerolog.Nop()
	for _, transport := range []string{"", TransportLocal, TransportNATS} {
		bus, err := New(transport, NATSConfig{}, RedisConfig{}, logger)
		if err != nil {
			t.Fatalf("transport %q: %v", transport, err)
		}
		sub := bus.Subscribe(events.EventRunStarted)
		bus.Publish(events.EventRunStarted, events.Payload{"run_id": transport})
		if p := receive(t, sub); p["run_id"] != transport {
			t.Fatalf("transport %q delivered %v", transport, p)
		}
		if err := bus.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	if _, err := New("kafka", NATSConfig{}, RedisConfig{}, logger); err == nil {
		t.Fatal("expected unknown transport error")
	}
}

func TestNATSBusFallsBackWhenUnreachable(t *testing.T) {
	nb := NewNATSBus(NATSConfig{URL: "nats://127.0.0.1:1", Timeout: 200 * time.Millisecond}, zerolog.Nop())
	defer nb.Close()
	if nb.Connected() {
		t.Fatal("expected no connection")
	}
	sub := nb.Subscribe(events.EventRunFailed)
	nb.Publish(events.EventRunFailed, events.Payload{"error": "x"})
	receive(t, sub)
}

func TestNATSBusRelaysRemoteEvents(t *testing.T) {
	nb := NewNATSBus(NATSConfig{NodeID: "self"}, zerolog.Nop())
	sub := nb.Subscribe(events.EventRunCompleted)

	own, _ := marshalMessage(events.EventRunCompleted, events.Payload{"from": "self"}, "self")
	nb.relay(&nats.Msg{Subject: nb.Subject(events.EventRunCompleted), Data: own})
	nb.relay(&nats.Msg{Subject: nb.Subject(events.EventRunCompleted), Data: []byte("not json")})

	remote, _ := marshalMessage(events.EventRunCompleted, events.Payload{"from": "peer"}, "peer")
	nb.relay(&nats.Msg{Subject: nb.Subject(events.EventRunCompleted), Data: remote})

	if p := receive(t, sub); p["from"] != "peer" {
		t.Fatalf("expected only the peer event, got %v", p)
	}
	if nb.Subject(events.EventRunCompleted) != "adsched.events.run.completed" {
		t.Fatalf("unexpected subject %q", nb.Subject(events.EventRunCompleted))
	}
}

func TestRedisBusFallsBackWhenUnreachable(t *testing.T) {
	rb := NewRedisBus(RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond}, zerolog.Nop())
	defer rb.Close()
	if !rb.Fallback() {
		t.Fatal("expected fallback mode")
	}
	sub := rb.Subscribe(events.EventRunStored)
	rb.Publish(events.EventRunStored, events.Payload{"run_id": "r1"})
	if p := receive(t, sub); p["run_id"] != "r1" {
		t.Fatalf("unexpected payload %v", p)
	}
	if rb.Channel(events.EventRunStored) != "adsched.events.run.stored" {
		t.Fatalf("unexpected channel %q", rb.Channel(events.EventRunStored))
	}
}
