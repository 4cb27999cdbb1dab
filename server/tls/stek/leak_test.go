package stek

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestStop_NoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	for i := 0; i < 10; i++ {
		r, err := New(time.Millisecond, 2, zerolog.Nop())
		if err != nil {
			t.Fatal(err)
		}
		r.Start(context.Background())
		r.Stop()
		r.Stop()
	}
}

func TestContextCancel_NoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	r, err := New(time.Millisecond, 2, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	r.Start(ctx)
	cancel()
	r.Stop()
}

func TestStopBeforeStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	r, err := New(time.Hour, 2, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	r.Stop()
	r.Start(context.Background())
	r.Stop()
}
