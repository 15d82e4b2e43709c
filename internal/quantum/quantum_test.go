/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package quantum

import (
	"reflect"
	"testing"

	"github.com/friendsincode/adaptive_scheduler/internal/interval"
	"github.com/friendsincode/adaptive_scheduler/internal/reservation"
)

func TestHashRoundTrip(t *testing.T) {
	cases := []struct {
		resource string
		start    float64
		quantum  float64
	}{
		{"foo", 0, 10},
		{"1m0a.doma.lsc", 3600.5, 900},
		{"with|pipes|inside", -20, 0.25},
		{"", 1e12, 3},
	}
	for _, c := range cases {
		res, start, q := Unhash(Hash(c.resource, c.start, c.quantum))
		if res != c.resource || start != c.start || q != c.quantum {
			t.Fatalf("round trip of %+v gave %q %g %g", c, res, start, q)
		}

		if end := Hash(c.resource, c.start, c.quantum).End(); end != c.start+c.quantum {
			t.Fatalf("End of %+v = %g", c, end)
		}
	}
}

func TestQuantizeWindows(t *testing.T) {
	r := reservation.New(1, 2, map[string]*interval.Intervals{
		"foo": interval.New([]interval.Timepoint{{Time: 1, Type: interval.Start}, {Time: 5, Type: interval.End}}, interval.TagFree),
	})

	got := QuantizeWindows(r, 2, "foo")
	want := []Key{Hash("foo", 2, 2), Hash("foo", 4, 2)}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("QuantizeWindows = %v, want %v", got, want)
	}

	if got := QuantizeWindows(r, 2, "bar"); len(got) != 0 {
		t.Fatalf("expected no keys for unknown resource, got %v", got)
	}
}

func TestMaxDuration(t *testing.T) {
	rs := []*reservation.Reservation{
		reservation.New(1, 30, nil),
		reservation.New(1, 90, nil),
		reservation.New(1, 60, nil),
	}
	if got := MaxDuration(rs); got != 90 {
		t.Fatalf("MaxDuration = %g, want 90", got)
	}
	if got := MaxDuration(nil); got != 0 {
		t.Fatalf("MaxDuration(nil) = %g, want 0", got)
	}
}
