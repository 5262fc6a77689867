package pool_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"drover/internal/config"
	"drover/internal/pool"
	"drover/internal/testsupport"
)

const payloadScript = "/* automation payload */ globalThis.ready = true;"

type fakeTarget struct {
	id            string
	title         string
	noSocket      bool
	hasInput      bool
	score         float64
	hasAgentPanel bool
	clicks        int
	sendReply     string

	mu       sync.Mutex
	injected bool
	prompts  []string
}

func (ft *fakeTarget) recordPrompt(expression string) {
	ft.mu.Lock()
	ft.prompts = append(ft.prompts, expression)
	ft.mu.Unlock()
}

func (ft *fakeTarget) promptLog() []string {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return append([]string(nil), ft.prompts...)
}

type fakeDebugHost struct {
	server  *httptest.Server
	targets []*fakeTarget

	mu        sync.Mutex
	listCalls int
}

func newFakeDebugHost(t *testing.T, targets ...*fakeTarget) *fakeDebugHost {
	t.Helper()

	host := &fakeDebugHost{targets: targets}
	mux := http.NewServeMux()
	mux.HandleFunc("/json/list", host.handleList)
	mux.HandleFunc("/devtools/", host.handleSocket)
	host.server = httptest.NewServer(mux)
	t.Cleanup(host.server.Close)
	return host
}

func (h *fakeDebugHost) handleList(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.listCalls++
	h.mu.Unlock()

	type descriptor struct {
		ID                   string `json:"id"`
		Type                 string `json:"type"`
		Title                string `json:"title"`
		URL                  string `json:"url"`
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl,omitempty"`
	}
	var list []descriptor
	for _, target := range h.targets {
		d := descriptor{ID: target.id, Type: "page", Title: target.title, URL: "app://chat"}
		if !target.noSocket {
			d.WebSocketDebuggerURL = "ws://" + r.Host + "/devtools/" + target.id
		}
		list = append(list, d)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

var upgrader = websocket.Upgrader{}

func (h *fakeDebugHost) handleSocket(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/devtools/")
	var target *fakeTarget
	for _, candidate := range h.targets {
		if candidate.id == id {
			target = candidate
			break
		}
	}
	if target == nil {
		http.NotFound(w, r)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame struct {
			ID     int64 `json:"id"`
			Params struct {
				Expression string `json:"expression"`
			} `json:"params"`
		}
		if err := json.Unmarshal(message, &frame); err != nil {
			continue
		}
		value := target.evaluate(frame.Params.Expression)
		reply := fmt.Sprintf(`{"id":%d,"result":{"result":{"type":"object","value":%s}}}`, frame.ID, value)
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			return
		}
	}
}

func (ft *fakeTarget) evaluate(expression string) string {
	switch {
	case expression == "typeof probePromptInput === 'function'":
		ft.mu.Lock()
		defer ft.mu.Unlock()
		return strconv.FormatBool(ft.injected)
	case expression == payloadScript:
		ft.mu.Lock()
		ft.injected = true
		ft.mu.Unlock()
		return "null"
	case expression == "start({})":
		return "true"
	case expression == "stop()":
		return "true"
	case expression == "probePromptInput()":
		return fmt.Sprintf(`{"hasInput":%t,"score":%g,"hasAgentPanel":%t}`,
			ft.hasInput, ft.score, ft.hasAgentPanel)
	case expression == "getStats()":
		return fmt.Sprintf(`{"clicks":%d,"mode":"active"}`, ft.clicks)
	case expression == "getAwayActions()":
		return `{"dismissed":1}`
	case expression == "resetStats()":
		return "true"
	case strings.HasPrefix(expression, "sendPrompt(") ||
		strings.HasPrefix(expression, "sendPromptToConversation("):
		ft.recordPrompt(expression)
		if ft.sendReply != "" {
			return ft.sendReply
		}
		return "true"
	default:
		return "null"
	}
}

func (ft *fakeTarget) isInjected() bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.injected
}

func poolConfig(t *testing.T, host *fakeDebugHost) *config.Config {
	t.Helper()

	hostname, portStr, err := net.SplitHostPort(strings.TrimPrefix(host.server.URL, "http://"))
	if err != nil {
		t.Fatalf("parse server addr: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse server port: %v", err)
	}

	cfg := testsupport.NewConfig(t, testsupport.WithDebugEndpoint(hostname, port))
	if err := os.WriteFile(cfg.Debug.PayloadPath, []byte(payloadScript), 0o644); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	return cfg
}

func TestRefreshFiltersAndInjects(t *testing.T) {
	chat := &fakeTarget{id: "chat-1", title: "Chat", hasInput: true, score: 0.8}
	settings := &fakeTarget{id: "settings-1", title: "Settings"}
	dead := &fakeTarget{id: "dead-1", title: "Background", noSocket: true}
	host := newFakeDebugHost(t, chat, settings, dead)

	p := pool.New(poolConfig(t, host), nil)
	defer p.Stop()

	if err := p.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	targets := p.Targets()
	if len(targets) != 1 {
		t.Fatalf("expected 1 pooled target, got %d: %#v", len(targets), targets)
	}
	if targets[0].ID != "chat-1" || !targets[0].Injected {
		t.Fatalf("unexpected pooled target: %#v", targets[0])
	}
	if !chat.isInjected() {
		t.Fatal("payload never reached the chat target")
	}
	if settings.isInjected() || dead.isInjected() {
		t.Fatal("excluded targets must not receive the payload")
	}
}

func TestRefreshDoesNotReinject(t *testing.T) {
	chat := &fakeTarget{id: "chat-1", title: "Chat", hasInput: true}
	host := newFakeDebugHost(t, chat)

	p := pool.New(poolConfig(t, host), nil)
	defer p.Stop()

	ctx := context.Background()
	if err := p.Refresh(ctx); err != nil {
		t.Fatalf("first Refresh failed: %v", err)
	}
	if err := p.Refresh(ctx); err != nil {
		t.Fatalf("second Refresh failed: %v", err)
	}

	// One payload evaluation and one start call only.
	chat.mu.Lock()
	injected := chat.injected
	chat.mu.Unlock()
	if !injected {
		t.Fatal("payload missing")
	}
}

func TestSendPromptPicksTopRanked(t *testing.T) {
	sidebar := &fakeTarget{id: "a-sidebar", title: "Chat", hasInput: true, score: 0.9}
	panel := &fakeTarget{id: "b-panel", title: "Chat", hasInput: true, score: 0.2, hasAgentPanel: true}
	host := newFakeDebugHost(t, sidebar, panel)

	p := pool.New(poolConfig(t, host), nil)
	defer p.Stop()

	ctx := context.Background()
	if err := p.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	result := p.SendPrompt(ctx, "hello there", "")
	if !result.Confirmed() {
		t.Fatalf("expected confirmed send, got %#v", result)
	}
	if result.Target != "b-panel" {
		t.Fatalf("delivered to %q, want agent panel target", result.Target)
	}
	if got := panel.promptLog(); len(got) != 1 || !strings.Contains(got[0], `"hello there"`) {
		t.Fatalf("panel prompt log = %v", got)
	}
	if got := sidebar.promptLog(); len(got) != 0 {
		t.Fatalf("sidebar must not receive the prompt, got %v", got)
	}
}

func TestSendPromptPinsConversation(t *testing.T) {
	chat := &fakeTarget{id: "chat-1", title: "Chat", hasInput: true, score: 0.5}
	host := newFakeDebugHost(t, chat)

	p := pool.New(poolConfig(t, host), nil)
	defer p.Stop()

	ctx := context.Background()
	if err := p.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	result := p.SendPrompt(ctx, "continue", "conv-42")
	if !result.Confirmed() {
		t.Fatalf("expected confirmed send, got %#v", result)
	}
	log := chat.promptLog()
	if len(log) != 1 || !strings.HasPrefix(log[0], "sendPromptToConversation(") {
		t.Fatalf("expected conversation-pinned delivery, got %v", log)
	}
	if !strings.Contains(log[0], `"conv-42"`) {
		t.Fatalf("conversation target missing from %q", log[0])
	}
}

func TestSendPromptUnconfirmedWithoutInput(t *testing.T) {
	chat := &fakeTarget{id: "chat-1", title: "Chat", hasInput: false}
	host := newFakeDebugHost(t, chat)

	p := pool.New(poolConfig(t, host), nil)
	defer p.Stop()

	ctx := context.Background()
	if err := p.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	result := p.SendPrompt(ctx, "hello", "")
	if result.Outcome != pool.OutcomeUnconfirmed {
		t.Fatalf("expected unconfirmed, got %#v", result)
	}
}

func TestSendPromptUnacknowledgedIsUnconfirmed(t *testing.T) {
	chat := &fakeTarget{id: "chat-1", title: "Chat", hasInput: true, sendReply: "false"}
	host := newFakeDebugHost(t, chat)

	p := pool.New(poolConfig(t, host), nil)
	defer p.Stop()

	ctx := context.Background()
	if err := p.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	result := p.SendPrompt(ctx, "hello", "")
	if result.Outcome != pool.OutcomeUnconfirmed {
		t.Fatalf("expected unconfirmed, got %#v", result)
	}
}

func TestStatsAggregateAcrossConnections(t *testing.T) {
	first := &fakeTarget{id: "chat-1", title: "Chat", hasInput: true, clicks: 3}
	second := &fakeTarget{id: "chat-2", title: "Chat", hasInput: true, clicks: 4}
	host := newFakeDebugHost(t, first, second)

	p := pool.New(poolConfig(t, host), nil)
	defer p.Stop()

	ctx := context.Background()
	if err := p.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	stats := p.Stats(ctx)
	if stats["clicks"] != 7 {
		t.Fatalf("clicks = %v, want 7", stats["clicks"])
	}
	if clicks := p.ClickCount(ctx); clicks != 7 {
		t.Fatalf("ClickCount = %d, want 7", clicks)
	}
	away := p.AwayActions(ctx)
	if away["dismissed"] != 2 {
		t.Fatalf("dismissed = %v, want 2", away["dismissed"])
	}
}

func TestSuspendedPoolStandsDown(t *testing.T) {
	chat := &fakeTarget{id: "chat-1", title: "Chat", hasInput: true}
	host := newFakeDebugHost(t, chat)

	p := pool.New(poolConfig(t, host), nil)
	defer p.Stop()

	ctx := context.Background()
	if err := p.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	p.SetSuspended(true)
	if len(p.Targets()) != 0 {
		t.Fatal("suspension must close pooled links")
	}

	host.mu.Lock()
	before := host.listCalls
	host.mu.Unlock()
	if err := p.Refresh(ctx); err != nil {
		t.Fatalf("suspended Refresh failed: %v", err)
	}
	host.mu.Lock()
	after := host.listCalls
	host.mu.Unlock()
	if after != before {
		t.Fatal("suspended pool must not hit the discovery endpoint")
	}

	result := p.SendPrompt(ctx, "hello", "")
	if result.Outcome != pool.OutcomeUnconfirmed {
		t.Fatalf("expected unconfirmed while suspended, got %#v", result)
	}

	p.SetSuspended(false)
	if err := p.Refresh(ctx); err != nil {
		t.Fatalf("resumed Refresh failed: %v", err)
	}
	if len(p.Targets()) != 1 {
		t.Fatal("resume must restore the pooled target")
	}
}
