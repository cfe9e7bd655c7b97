package iox

import (
	"errors"
	"io"
	"strings"
	"testing"
)

type spyBody struct {
	io.Reader
	closed bool
}

func (s *spyBody) Close() error { s.closed = true; return errors.New("ignored") }

func TestDiscardClose(t *testing.T) {
	s := &spyBody{Reader: strings.NewReader("")}
	DiscardClose(s)
	if !s.closed {
		t.Fatal("Close was not called")
	}
}

func TestDrainClose(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		remaining int
	}{
		{"empty", 0, 0},
		{"small body drained", 128, 0},
		{"oversized body abandoned", MaxDrain + 10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := strings.NewReader(strings.Repeat("x", tt.size))
			s := &spyBody{Reader: r}
			DrainClose(s)
			if !s.closed {
				t.Fatal("Close was not called")
			}
			if r.Len() != tt.remaining {
				t.Errorf("remaining = %d, want %d", r.Len(), tt.remaining)
			}
		})
	}
}

func TestDrainCloseNil(t *testing.T) {
	DrainClose(nil)
}

func TestCleanupOrder(t *testing.T) {
	var order []string
	step := func(name string) func() error {
		return func() error {
			order = append(order, name)
			return errors.New("ignored")
		}
	}
	Cleanup(step("log file"), nil, step("logger sync"))()

	want := []string{"logger sync", "log file"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}
