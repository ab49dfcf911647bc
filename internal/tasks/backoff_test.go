package tasks

import (
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	t.Run("Doubles Up To Cap", func(t *testing.T) {
		b := NewBackoff(600*time.Second, 86400*time.Second)

		want := []time.Duration{600, 1200, 2400, 4800, 9600, 19200, 38400, 76800, 86400, 86400}
		for i, w := range want {
			if got := b.Next(); got != w*time.Second {
				t.Fatalf("call %d: expected %v, got %v", i+1, w*time.Second, got)
			}
		}
	})

	t.Run("Reset", func(t *testing.T) {
		b := NewBackoff(time.Second, time.Minute)
		b.Next()
		b.Next()
		b.Reset()

		if got := b.Next(); got != time.Second {
			t.Errorf("expected base after reset, got %v", got)
		}
	})

	t.Run("Stays Within Bounds", func(t *testing.T) {
		b := NewBackoff(3*time.Second, 10*time.Second)
		for range 20 {
			d := b.Next()
			if d < 3*time.Second || d > 10*time.Second {
				t.Fatalf("delay %v out of bounds", d)
			}
			if c := b.Current(); c < 3*time.Second || c > 10*time.Second {
				t.Fatalf("current %v out of bounds", c)
			}
		}
	})

	t.Run("Defaults", func(t *testing.T) {
		tests := []struct {
			name      string
			base, max time.Duration
			wantBase  time.Duration
			wantMax   time.Duration
		}{
			{"zero values", 0, 0, DefaultBackoffBase, DefaultBackoffMax},
			{"max below base", time.Minute, time.Second, time.Minute, time.Minute},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				b := NewBackoff(tt.base, tt.max)
				if b.base != tt.wantBase || b.max != tt.wantMax {
					t.Errorf("expected [%v,%v], got [%v,%v]", tt.wantBase, tt.wantMax, b.base, b.max)
				}
			})
		}
	})
}
