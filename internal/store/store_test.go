package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"drover/internal/testsupport"
)

func TestTaskOrderSurvivesReopen(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := st.AddTask(ctx, fmt.Sprintf("prompt %d", i)); err != nil {
			t.Fatalf("AddTask failed: %v", err)
		}
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	tasks, err := reopened.ListTasks(ctx)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}
	for i, task := range tasks {
		want := fmt.Sprintf("prompt %d", i)
		if task.Text != want {
			t.Fatalf("task %d text = %q, want %q", i, task.Text, want)
		}
		if task.CreatedAt.IsZero() {
			t.Fatalf("task %d has zero created_at", i)
		}
	}
}

func TestRemoveFirstTaskConsumesInOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	if _, err := st.AddTask(ctx, "first"); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}
	if _, err := st.AddTask(ctx, "second"); err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}

	front, err := st.RemoveFirstTask(ctx)
	if err != nil {
		t.Fatalf("RemoveFirstTask failed: %v", err)
	}
	if front == nil || front.Text != "first" {
		t.Fatalf("unexpected front task: %#v", front)
	}

	count, err := st.CountTasks(ctx)
	if err != nil {
		t.Fatalf("CountTasks failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 remaining task, got %d", count)
	}

	front, err = st.RemoveFirstTask(ctx)
	if err != nil {
		t.Fatalf("RemoveFirstTask failed: %v", err)
	}
	if front == nil || front.Text != "second" {
		t.Fatalf("unexpected second task: %#v", front)
	}

	front, err = st.RemoveFirstTask(ctx)
	if err != nil {
		t.Fatalf("RemoveFirstTask on empty list failed: %v", err)
	}
	if front != nil {
		t.Fatalf("expected nil task from empty list, got %#v", front)
	}
}

func TestClearTasks(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if _, err := st.AddTask(ctx, "x"); err != nil {
			t.Fatalf("AddTask failed: %v", err)
		}
	}

	removed, err := st.ClearTasks(ctx)
	if err != nil {
		t.Fatalf("ClearTasks failed: %v", err)
	}
	if removed != 4 {
		t.Fatalf("expected 4 removed, got %d", removed)
	}

	count, err := st.CountTasks(ctx)
	if err != nil {
		t.Fatalf("CountTasks failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty list, got %d", count)
	}
}

func TestLeaseLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	lease, err := st.ReadLease(ctx)
	if err != nil {
		t.Fatalf("ReadLease failed: %v", err)
	}
	if lease != nil {
		t.Fatalf("expected no lease initially, got %#v", lease)
	}

	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := st.UpsertLease(ctx, "instance-a", first); err != nil {
		t.Fatalf("UpsertLease failed: %v", err)
	}

	lease, err = st.ReadLease(ctx)
	if err != nil {
		t.Fatalf("ReadLease failed: %v", err)
	}
	if lease == nil || lease.OwnerID != "instance-a" {
		t.Fatalf("unexpected lease: %#v", lease)
	}
	if !lease.LastHeartbeat.Equal(first) {
		t.Fatalf("heartbeat = %v, want %v", lease.LastHeartbeat, first)
	}

	// Takeover by another instance overwrites the single row.
	second := first.Add(30 * time.Second)
	if err := st.UpsertLease(ctx, "instance-b", second); err != nil {
		t.Fatalf("UpsertLease takeover failed: %v", err)
	}
	lease, err = st.ReadLease(ctx)
	if err != nil {
		t.Fatalf("ReadLease failed: %v", err)
	}
	if lease == nil || lease.OwnerID != "instance-b" {
		t.Fatalf("expected instance-b to own lease, got %#v", lease)
	}

	// Release by a non-owner is a no-op.
	if err := st.ReleaseLease(ctx, "instance-a"); err != nil {
		t.Fatalf("ReleaseLease failed: %v", err)
	}
	lease, err = st.ReadLease(ctx)
	if err != nil {
		t.Fatalf("ReadLease failed: %v", err)
	}
	if lease == nil {
		t.Fatal("lease should survive release by non-owner")
	}

	if err := st.ReleaseLease(ctx, "instance-b"); err != nil {
		t.Fatalf("ReleaseLease failed: %v", err)
	}
	lease, err = st.ReadLease(ctx)
	if err != nil {
		t.Fatalf("ReadLease failed: %v", err)
	}
	if lease != nil {
		t.Fatalf("expected lease removed, got %#v", lease)
	}
}
