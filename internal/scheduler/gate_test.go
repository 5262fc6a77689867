package scheduler_test

import (
	"context"
	"testing"
	"time"

	"drover/internal/config"
	"drover/internal/scheduler"
)

func TestQuotaRisingEdgeOnlyRecordsState(t *testing.T) {
	f := newFixture(t, []string{"Task A"}, nil)

	if err := f.sched.Start(context.Background(), scheduler.StartSourceUser); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	f.waitHistory(t, 1)

	f.sched.SetQuotaExhausted(true)
	if !f.sched.QuotaExhausted() {
		t.Fatal("gate must report exhausted")
	}

	time.Sleep(20 * time.Millisecond)
	if f.sender.callCount() != 1 {
		t.Fatal("rising edge must not trigger any delivery")
	}
	if !f.sched.Status().Running {
		t.Fatal("rising edge must not stop the run")
	}
}

func TestQuotaFallingEdgeRedispatchesCurrentItem(t *testing.T) {
	f := newFixture(t, []string{"Task A", "Task B"}, nil)

	if err := f.sched.Start(context.Background(), scheduler.StartSourceUser); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	f.waitHistory(t, 1)

	f.sched.SetQuotaExhausted(true)
	f.sched.SetQuotaExhausted(false)
	f.waitHistory(t, 2)

	// The interrupted item is re-sent, not advanced past.
	if got := f.sender.call(1).text; got != "Task A" {
		t.Fatalf("falling-edge dispatch = %q, want current item Task A", got)
	}
	status := f.sched.Status()
	if status.QueueIndex != 0 {
		t.Fatalf("queue index = %d, want unchanged 0", status.QueueIndex)
	}
	if status.QuotaExhausted {
		t.Fatal("gate must report available again")
	}
}

func TestQuotaFallingEdgeSendsContinuationWhenIdle(t *testing.T) {
	f := newFixture(t, nil, func(cfg *config.Config) {
		cfg.Queue.AutoContinue = true
		cfg.Queue.ContinuePrompt = "Continue."
	})

	f.sched.SetQuotaExhausted(true)
	f.sched.SetQuotaExhausted(false)
	f.waitHistory(t, 1)

	if got := f.sender.call(0).text; got != "Continue." {
		t.Fatalf("continuation prompt = %q, want Continue.", got)
	}
	if f.sched.Status().Running {
		t.Fatal("continuation must not start a queue run")
	}
}

func TestQuotaFallingEdgeIdleWithoutContinuation(t *testing.T) {
	f := newFixture(t, nil, func(cfg *config.Config) {
		cfg.Queue.AutoContinue = false
	})

	f.sched.SetQuotaExhausted(true)
	f.sched.SetQuotaExhausted(false)

	time.Sleep(20 * time.Millisecond)
	if f.sender.callCount() != 0 {
		t.Fatal("no recovery action expected when idle and auto-continue disabled")
	}
}

func TestQuotaSetterIsEdgeTriggered(t *testing.T) {
	f := newFixture(t, nil, func(cfg *config.Config) {
		cfg.Queue.AutoContinue = true
	})

	// Repeating the same value is not an edge.
	f.sched.SetQuotaExhausted(false)
	f.sched.SetQuotaExhausted(false)

	time.Sleep(20 * time.Millisecond)
	if f.sender.callCount() != 0 {
		t.Fatal("level-triggered behavior detected; setter must be edge-triggered")
	}
}
