package events

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	at := time.Unix(100, 0)
	a := New(KindTickSummary, 7, at, map[string]int{"x": 1})
	b := New(KindTickSummary, 7, at, nil)
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("event IDs should be unique and non-empty: %q %q", a.ID, b.ID)
	}
	if a.Kind != KindTickSummary || a.Tick != 7 || !a.At.Equal(at) {
		t.Errorf("unexpected event: %+v", a)
	}
}

func TestMulti(t *testing.T) {
	ctx := context.Background()
	errBoom := errors.New("boom")
	buf := NewBuffer(0)
	failing := SinkFunc(func(context.Context, Event) error { return errBoom })

	s := Multi(buf, nil, failing, Nop)
	err := s.Publish(ctx, New(KindDecay, 1, time.Now(), nil))
	if !errors.Is(err, errBoom) {
		t.Errorf("err = %v, want errBoom", err)
	}
	if buf.Len() != 1 {
		t.Errorf("buffer got %d events, want 1 despite the failing sink", buf.Len())
	}

	if err := Multi().Publish(ctx, Event{}); err != nil {
		t.Errorf("empty Multi returned %v", err)
	}
}

func TestBuffer(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		n     int
		want  int
		first uint64
	}{
		{name: "unbounded", limit: 0, n: 5, want: 5, first: 0},
		{name: "bounded", limit: 3, n: 5, want: 3, first: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuffer(tt.limit)
			for i := 0; i < tt.n; i++ {
				kind := KindStride
				if i%2 == 0 {
					kind = KindTickSummary
				}
				_ = b.Publish(context.Background(), New(kind, uint64(i), time.Now(), nil))
			}
			got := b.Events()
			if len(got) != tt.want {
				t.Fatalf("len = %d, want %d", len(got), tt.want)
			}
			if got[0].Tick != tt.first {
				t.Errorf("oldest tick = %d, want %d", got[0].Tick, tt.first)
			}
		})
	}

	b := NewBuffer(0)
	_ = b.Publish(context.Background(), New(KindStride, 1, time.Now(), nil))
	_ = b.Publish(context.Background(), New(KindDecay, 1, time.Now(), nil))
	if n := len(b.OfKind(KindDecay)); n != 1 {
		t.Errorf("OfKind(decay) = %d, want 1", n)
	}
	b.Reset()
	if b.Len() != 0 {
		t.Error("Reset should empty the buffer")
	}
}
