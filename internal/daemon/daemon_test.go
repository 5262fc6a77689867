package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"drover/internal/daemon"
	"drover/internal/logging"
	"drover/internal/testsupport"
)

func startDaemon(t *testing.T) *daemon.Daemon {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	d, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() {
		_ = d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return d
}

func TestStartEnforcesSingleInstancePerDataDir(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	first, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = first.Close() })

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	second, err := daemon.New(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })

	if err := second.Start(ctx); err == nil {
		t.Fatal("second daemon on the same data dir must fail to start")
	}

	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("restart after lock release failed: %v", err)
	}
}

func apiURL(d *daemon.Daemon, path string) string {
	return fmt.Sprintf("http://%s%s", d.APIAddr(), path)
}

func TestStatusEndpoint(t *testing.T) {
	d := startDaemon(t)

	resp, err := http.Get(apiURL(d, "/api/status"))
	if err != nil {
		t.Fatalf("GET /api/status failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d", resp.StatusCode)
	}

	var status daemon.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running {
		t.Fatal("daemon should report running")
	}
	if status.Scheduler.Running {
		t.Fatal("scheduler should start idle")
	}
	if status.InstanceID == "" {
		t.Fatal("instance id missing")
	}
}

func TestTaskEndpoints(t *testing.T) {
	d := startDaemon(t)

	body := bytes.NewBufferString(`{"text":"write the report"}`)
	resp, err := http.Post(apiURL(d, "/api/tasks"), "application/json", body)
	if err != nil {
		t.Fatalf("POST /api/tasks failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status code = %d, want 201", resp.StatusCode)
	}

	resp, err = http.Get(apiURL(d, "/api/tasks"))
	if err != nil {
		t.Fatalf("GET /api/tasks failed: %v", err)
	}
	var listing struct {
		Tasks []struct {
			ID   int64  `json:"id"`
			Text string `json:"text"`
		} `json:"tasks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		t.Fatalf("decode tasks: %v", err)
	}
	resp.Body.Close()
	if len(listing.Tasks) != 1 || listing.Tasks[0].Text != "write the report" {
		t.Fatalf("unexpected task listing: %#v", listing.Tasks)
	}

	req, err := http.NewRequest(http.MethodDelete, apiURL(d, "/api/tasks"), nil)
	if err != nil {
		t.Fatalf("build DELETE: %v", err)
	}
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /api/tasks failed: %v", err)
	}
	var cleared struct {
		Removed int64 `json:"removed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&cleared); err != nil {
		t.Fatalf("decode clear response: %v", err)
	}
	resp.Body.Close()
	if cleared.Removed != 1 {
		t.Fatalf("removed = %d, want 1", cleared.Removed)
	}
}

func TestQueueStartWithEmptyListRejected(t *testing.T) {
	d := startDaemon(t)

	resp, err := http.Post(apiURL(d, "/api/queue/start"), "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/queue/start failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status code = %d, want 422 for empty task list", resp.StatusCode)
	}
}

func TestQuotaAndConversationEndpoints(t *testing.T) {
	d := startDaemon(t)

	resp, err := http.Post(apiURL(d, "/api/quota"), "application/json",
		bytes.NewBufferString(`{"exhausted":true}`))
	if err != nil {
		t.Fatalf("POST /api/quota failed: %v", err)
	}
	resp.Body.Close()
	if !d.Scheduler().QuotaExhausted() {
		t.Fatal("quota state not applied")
	}

	resp, err = http.Post(apiURL(d, "/api/conversation"), "application/json",
		bytes.NewBufferString(`{"target":"conv-9"}`))
	if err != nil {
		t.Fatalf("POST /api/conversation failed: %v", err)
	}
	resp.Body.Close()
	if got := d.Scheduler().Status().Conversation; got != "conv-9" {
		t.Fatalf("conversation = %q, want conv-9", got)
	}
}

func TestMetricsEndpointServes(t *testing.T) {
	d := startDaemon(t)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(apiURL(d, "/metrics"))
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d", resp.StatusCode)
	}
}

func TestUnknownQueueCommandRejected(t *testing.T) {
	d := startDaemon(t)

	resp, err := http.Post(apiURL(d, "/api/queue/flush"), "application/json", nil)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status code = %d, want 404", resp.StatusCode)
	}
}
