package httptransport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"agent-marketplace/internal/config"
	"agent-marketplace/internal/market"
	"agent-marketplace/internal/notify"
	"agent-marketplace/internal/store"
	"agent-marketplace/internal/testutil"

	"github.com/gorilla/websocket"
)

const (
	sellerAddr = "0x00000000000000000000000000000000000000aa"
	buyerAddr  = "0x00000000000000000000000000000000000000bb"
)

type staticReputation struct{ value int64 }

func (s staticReputation) AgentReputation(context.Context, string) (int64, error) {
	return s.value, nil
}

type testEnv struct {
	router http.Handler
	mem    *testutil.MemStore
	hub    *notify.Hub
}

func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()
	mem := testutil.NewMemStore()
	hub := notify.NewHub(notify.DefaultQueueSize)
	t.Cleanup(hub.CloseAll)
	d := Deps{
		Repo:    mem,
		Machine: market.NewMachine(mem, hub),
		Hub:     hub,
		Config: config.ServerConfig{
			AdminAPIKey:       "secret",
			CORSOrigin:        "*",
			WSEnabled:         true,
			SSEEnabled:        true,
			MCPEnabled:        true,
			MaxBodyBytes:      1 << 20,
			WSPingInterval:    time.Second,
			StoreTimeout:      5 * time.Second,
			ReputationTimeout: time.Second,
		},
	}
	if mutate != nil {
		mutate(&d)
	}
	return &testEnv{router: NewRouter(d), mem: mem, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func listingBody(id int64) map[string]any {
	return map[string]any{
		"listingId":   id,
		"seller":      sellerAddr,
		"sellerAgent": "agent-s",
		"title":       "GPU hours",
		"description": "Eight hours on an idle card",
		"price":       "1500000000000000000",
		"category":    "compute",
		"txHash":      "0xlist",
	}
}

func registerAgents(t *testing.T, e *testEnv) {
	t.Helper()
	for _, a := range []map[string]any{
		{"agentId": "agent-s", "address": sellerAddr, "name": "Seller", "owner": "alice"},
		{"agentId": "agent-b", "address": buyerAddr, "name": "Buyer", "owner": "bob"},
	} {
		w, _ := e.do(t, http.MethodPost, "/agents/register", a)
		if w.Code != http.StatusCreated {
			t.Fatalf("register %v: status %d body %s", a["agentId"], w.Code, w.Body.String())
		}
	}
}

func TestHealthAndInfo(t *testing.T) {
	e := newTestEnv(t, nil)
	w, body := e.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK || body["status"] != "ok" || body["websocketConnections"] != float64(0) {
		t.Fatalf("health = %d %v", w.Code, body)
	}
	w, body = e.do(t, http.MethodGet, "/", nil)
	if w.Code != http.StatusOK || body["name"] != "Agent Marketplace API" {
		t.Fatalf("info = %d %v", w.Code, body)
	}
	w, body = e.do(t, http.MethodGet, "/nope", nil)
	if w.Code != http.StatusNotFound || body["error"] != "endpoint_not_found" {
		t.Fatalf("unknown route = %d %v", w.Code, body)
	}
}

func TestListingEndpoints(t *testing.T) {
	e := newTestEnv(t, nil)

	w, body := e.do(t, http.MethodPost, "/listings", listingBody(7))
	if w.Code != http.StatusCreated || body["success"] != true {
		t.Fatalf("create = %d %s", w.Code, w.Body.String())
	}
	listing := body["listing"].(map[string]any)
	if listing["status"] != "active" || listing["price"] != "1500000000000000000" {
		t.Fatalf("listing = %v", listing)
	}

	w, body = e.do(t, http.MethodPost, "/listings", listingBody(7))
	if w.Code != http.StatusConflict || body["error"] != "listing_exists" {
		t.Fatalf("duplicate = %d %v", w.Code, body)
	}

	bad := listingBody(8)
	bad["seller"] = "0x12"
	delete(bad, "title")
	w, body = e.do(t, http.MethodPost, "/listings", bad)
	if w.Code != http.StatusBadRequest || body["error"] != "invalid_request" {
		t.Fatalf("invalid = %d %v", w.Code, body)
	}
	if fields, _ := body["fields"].([]any); len(fields) != 2 {
		t.Fatalf("fields = %v", body["fields"])
	}

	w, _ = e.do(t, http.MethodPost, "/listings", "{not json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("malformed json status = %d", w.Code)
	}

	w, body = e.do(t, http.MethodGet, "/listings?category=compute", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("browse = %d %s", w.Code, w.Body.String())
	}
	pagination := body["pagination"].(map[string]any)
	if pagination["total"] != float64(1) || pagination["limit"] != float64(20) || pagination["page"] != float64(1) {
		t.Fatalf("pagination = %v", pagination)
	}

	if w, _ = e.do(t, http.MethodGet, "/listings?limit=101", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("limit over max status = %d", w.Code)
	}
	if w, _ = e.do(t, http.MethodGet, "/listings/abc", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", w.Code)
	}
	if w, body = e.do(t, http.MethodGet, "/listings/99", nil); w.Code != http.StatusNotFound || body["error"] != "listing_not_found" {
		t.Fatalf("missing listing = %d %v", w.Code, body)
	}

	w, body = e.do(t, http.MethodPatch, "/listings/7", map[string]any{"status": "cancelled"})
	if w.Code != http.StatusOK || body["listing"].(map[string]any)["status"] != "cancelled" {
		t.Fatalf("patch = %d %v", w.Code, body)
	}
	w, body = e.do(t, http.MethodPatch, "/listings/7", map[string]any{"status": "active"})
	if w.Code != http.StatusConflict || body["error"] != "invalid_transition" {
		t.Fatalf("reopen = %d %v", w.Code, body)
	}
}

func TestPurchaseFlow(t *testing.T) {
	e := newTestEnv(t, nil)
	registerAgents(t, e)
	if w, _ := e.do(t, http.MethodPost, "/listings", listingBody(7)); w.Code != http.StatusCreated {
		t.Fatalf("create listing = %d", w.Code)
	}

	w, body := e.do(t, http.MethodPost, "/purchase/request", map[string]any{"listingId": 7, "buyer": sellerAddr, "buyerAgent": "agent-s", "txHash": "0x1"})
	if w.Code != http.StatusBadRequest || body["error"] != "self_purchase" {
		t.Fatalf("self purchase = %d %v", w.Code, body)
	}

	req := map[string]any{"listingId": 7, "buyer": buyerAddr, "buyerAgent": "agent-b", "txHash": "0xreq"}
	w, body = e.do(t, http.MethodPost, "/purchase/request", req)
	if w.Code != http.StatusCreated || body["transaction"].(map[string]any)["status"] != "requested" {
		t.Fatalf("request = %d %s", w.Code, w.Body.String())
	}

	req["txHash"] = "0xreq2"
	w, body = e.do(t, http.MethodPost, "/purchase/request", req)
	if w.Code != http.StatusConflict || body["error"] != "listing_not_active" {
		t.Fatalf("second request = %d %v", w.Code, body)
	}

	ctx := context.Background()
	if _, err := e.mem.UpdateListingState(ctx, 7, store.ListingActive, "", ""); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	w, body = e.do(t, http.MethodPost, "/purchase/request", req)
	if w.Code != http.StatusConflict || body["error"] != "purchase_in_progress" {
		t.Fatalf("request with open transaction = %d %v", w.Code, body)
	}
	if existing, _ := body["transaction"].(map[string]any); existing["requestTxHash"] != "0xreq" {
		t.Fatalf("conflict transaction = %v", body["transaction"])
	}
	if _, err := e.mem.UpdateListingState(ctx, 7, store.ListingPending, buyerAddr, "agent-b"); err != nil {
		t.Fatalf("restore pending: %v", err)
	}

	w, body = e.do(t, http.MethodPost, "/purchase/release", map[string]any{"listingId": 7, "txHash": "0xrel"})
	if w.Code != http.StatusNotFound || body["error"] != "no_confirmed_purchase" {
		t.Fatalf("early release = %d %v", w.Code, body)
	}
	if w, _ = e.do(t, http.MethodPost, "/purchase/confirm", map[string]any{"listingId": 7, "txHash": "0xconf"}); w.Code != http.StatusOK {
		t.Fatalf("confirm = %d %s", w.Code, w.Body.String())
	}
	w, body = e.do(t, http.MethodPost, "/purchase/release", map[string]any{"listingId": 7, "txHash": "0xrel"})
	if w.Code != http.StatusOK || body["transaction"].(map[string]any)["status"] != "completed" {
		t.Fatalf("release = %d %s", w.Code, w.Body.String())
	}

	w, body = e.do(t, http.MethodGet, "/purchase/transactions/7", nil)
	tx := body["transaction"].(map[string]any)
	if w.Code != http.StatusOK || tx["releaseTxHash"] != "0xrel" || tx["confirmTxHash"] != "0xconf" {
		t.Fatalf("latest = %d %v", w.Code, body)
	}
	w, body = e.do(t, http.MethodGet, "/purchase/transactions?status=completed&buyer="+buyerAddr, nil)
	if w.Code != http.StatusOK || body["pagination"].(map[string]any)["total"] != float64(1) {
		t.Fatalf("history = %d %v", w.Code, body)
	}
	if w, _ = e.do(t, http.MethodGet, "/purchase/transactions/8", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing latest = %d", w.Code)
	}

	w, body = e.do(t, http.MethodGet, "/agents/agent-b", nil)
	agent := body["agent"].(map[string]any)
	if w.Code != http.StatusOK || agent["totalPurchases"] != float64(1) || agent["successfulTrades"] != float64(1) {
		t.Fatalf("buyer agent = %d %v", w.Code, body)
	}
	l, _ := e.mem.GetListing(ctx, 7)
	if l.Status != store.ListingSold {
		t.Fatalf("listing status = %s", l.Status)
	}
}

func TestAgentEndpoints(t *testing.T) {
	e := newTestEnv(t, func(d *Deps) { d.Reputation = staticReputation{value: 120} })
	registerAgents(t, e)

	w, body := e.do(t, http.MethodPost, "/agents/register", map[string]any{"agentId": "agent-x", "address": sellerAddr, "name": "Dup", "owner": "eve"})
	if w.Code != http.StatusConflict || body["error"] != "agent_exists" {
		t.Fatalf("duplicate = %d %v", w.Code, body)
	}

	w, body = e.do(t, http.MethodGet, "/agents/0x"+strings.ToUpper(buyerAddr[2:]), nil)
	if w.Code != http.StatusOK || body["agent"].(map[string]any)["agentId"] != "agent-b" {
		t.Fatalf("lookup by mixed-case address = %d %v", w.Code, body)
	}
	if w, _ = e.do(t, http.MethodGet, "/agents/nobody", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing agent = %d", w.Code)
	}
	w, body = e.do(t, http.MethodGet, "/agents/"+buyerAddr+"/reputation", nil)
	agent := body["agent"].(map[string]any)
	if w.Code != http.StatusOK || agent["agentId"] != "agent-b" || agent["reputation"] != float64(120) {
		t.Fatalf("reputation = %d %v", w.Code, body)
	}

	w, body = e.do(t, http.MethodGet, "/agents?sortBy=created&limit=1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d %s", w.Code, w.Body.String())
	}
	if agents := body["agents"].([]any); len(agents) != 1 || body["pagination"].(map[string]any)["pages"] != float64(2) {
		t.Fatalf("list body = %v", body)
	}
}

func TestDebugVarsRequiresAdminKey(t *testing.T) {
	e := newTestEnv(t, nil)
	if w, _ := e.do(t, http.MethodGet, "/debug/vars", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", w.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/debug/vars", nil)
	req.Header.Set("X-Admin-Key", "secret")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "ws_connections_active") {
		t.Fatalf("debug vars = %d", w.Code)
	}
}

func TestCORSAndBodyLimit(t *testing.T) {
	e := newTestEnv(t, func(d *Deps) { d.Config.MaxBodyBytes = 64 })

	req := httptest.NewRequest(http.MethodOptions, "/listings", nil)
	req.Header.Set("Origin", "http://example.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("preflight = %d %v", w.Code, w.Header())
	}

	w, body := e.do(t, http.MethodPost, "/listings", listingBody(1))
	if w.Code != http.StatusRequestEntityTooLarge || body["error"] != "payload_too_large" {
		t.Fatalf("oversized body = %d %v", w.Code, body)
	}
}

func TestWebSocketReceivesPurchaseNotification(t *testing.T) {
	e := newTestEnv(t, nil)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg notify.Message
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != notify.Connected {
		t.Fatalf("welcome = %+v, %v", msg, err)
	}

	if w, _ := e.do(t, http.MethodPost, "/listings", listingBody(3)); w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}
	if w, _ := e.do(t, http.MethodPost, "/purchase/request", map[string]any{"listingId": 3, "buyer": buyerAddr, "buyerAgent": "agent-b", "txHash": "0xreq"}); w.Code != http.StatusCreated {
		t.Fatalf("request = %d", w.Code)
	}

	want := []notify.Kind{notify.ListingCreated, notify.PurchaseRequested}
	for _, kind := range want {
		var got notify.Message
		if err := conn.ReadJSON(&got); err != nil {
			t.Fatalf("read %s: %v", kind, err)
		}
		if got.Type != kind || got.Timestamp == 0 {
			t.Fatalf("message = %+v, want %s", got, kind)
		}
	}
}

func TestWebSocketDisabled(t *testing.T) {
	e := newTestEnv(t, func(d *Deps) { d.Config.WSEnabled = false })
	if w, _ := e.do(t, http.MethodGet, "/ws", nil); w.Code != http.StatusNotFound {
		t.Fatalf("ws disabled status = %d", w.Code)
	}
}

func TestEventStreamReceivesListingCreated(t *testing.T) {
	e := newTestEnv(t, nil)
	srv := httptest.NewServer(e.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events?types=listing_created", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	rd := bufio.NewReader(resp.Body)

	nextEvent := func() string {
		for {
			line, err := rd.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			if strings.HasPrefix(line, "event: ") {
				return strings.TrimSpace(strings.TrimPrefix(line, "event: "))
			}
		}
	}
	if ev := nextEvent(); ev != string(notify.Connected) {
		t.Fatalf("first event = %q", ev)
	}

	if w, _ := e.do(t, http.MethodPost, "/listings", listingBody(8)); w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}
	if ev := nextEvent(); ev != string(notify.ListingCreated) {
		t.Fatalf("event = %q, want listing_created", ev)
	}

	off := newTestEnv(t, func(d *Deps) { d.Config.SSEEnabled = false })
	if w, _ := off.do(t, http.MethodGet, "/events", nil); w.Code != http.StatusNotFound {
		t.Fatalf("sse disabled status = %d", w.Code)
	}
}

func TestMCPEndpoint(t *testing.T) {
	initialize := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"router-test","version":"0"}}}`

	e := newTestEnv(t, nil)
	w, out := e.do(t, http.MethodPost, "/mcp", initialize)
	if w.Code != http.StatusOK {
		t.Fatalf("initialize status = %d body=%s", w.Code, w.Body.String())
	}
	result, _ := out["result"].(map[string]any)
	info, _ := result["serverInfo"].(map[string]any)
	if info["name"] != "agent-marketplace" || info["version"] != APIVersion {
		t.Fatalf("unexpected server info: %v", out)
	}

	off := newTestEnv(t, func(d *Deps) { d.Config.MCPEnabled = false })
	if w, _ := off.do(t, http.MethodPost, "/mcp", initialize); w.Code != http.StatusNotFound {
		t.Fatalf("disabled mcp status = %d, want 404", w.Code)
	}
}
