package notify

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type sseEvent struct {
	kind Kind
	data string
}

func readSSE(t *testing.T, rd *bufio.Reader, timeout time.Duration) sseEvent {
	t.Helper()
	ch := make(chan sseEvent, 1)
	errCh := make(chan error, 1)
	go func() {
		var ev sseEvent
		for {
			line, err := rd.ReadString('\n')
			if err != nil {
				errCh <- err
				return
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.kind = Kind(strings.TrimPrefix(line, "event: "))
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			case line == "" && ev.kind != "":
				ch <- ev
				return
			}
		}
	}()
	select {
	case ev := <-ch:
		return ev
	case err := <-errCh:
		t.Fatalf("read event: %v", err)
	case <-time.After(timeout):
		t.Fatal("timeout waiting for event")
	}
	return sseEvent{}
}

func openSSE(t *testing.T, hub *Hub, ping time.Duration, query string) *bufio.Reader {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(NewServer(hub, ping).HandleSSE))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+query, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
	return bufio.NewReader(resp.Body)
}

func TestSSEWelcomeAndBroadcast(t *testing.T) {
	hub := NewHub(8)
	rd := openSSE(t, hub, time.Minute, "/")

	if ev := readSSE(t, rd, time.Second); ev.kind != Connected {
		t.Fatalf("first event = %q, want connected", ev.kind)
	}
	waitForCount(t, hub, 1)

	hub.Publish(FundsReleased, map[string]any{"listingId": 4})
	ev := readSSE(t, rd, time.Second)
	if ev.kind != FundsReleased {
		t.Fatalf("event = %q, want funds_released", ev.kind)
	}
	var m Message
	if err := json.Unmarshal([]byte(ev.data), &m); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if m.Type != FundsReleased || m.Timestamp == 0 {
		t.Fatalf("unexpected frame: %+v", m)
	}
}

func TestSSEFiltersByType(t *testing.T) {
	hub := NewHub(8)
	rd := openSSE(t, hub, time.Minute, "/?types=purchase_confirmed,%20funds_released")
	readSSE(t, rd, time.Second)
	waitForCount(t, hub, 1)

	hub.Publish(ListingCreated, map[string]any{"listingId": 1})
	hub.Publish(PurchaseConfirmed, map[string]any{"listingId": 1})
	if ev := readSSE(t, rd, time.Second); ev.kind != PurchaseConfirmed {
		t.Fatalf("event = %q, want purchase_confirmed", ev.kind)
	}
}

func TestSSEPingsAndClosesWithHub(t *testing.T) {
	hub := NewHub(8)
	rd := openSSE(t, hub, 20*time.Millisecond, "/")
	readSSE(t, rd, time.Second)

	if ev := readSSE(t, rd, time.Second); ev.kind != Ping {
		t.Fatalf("event = %q, want ping", ev.kind)
	}

	waitForCount(t, hub, 1)
	hub.CloseAll()
	done := make(chan error, 1)
	go func() {
		_, err := rd.ReadString(0)
		done <- err
	}()
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected stream to end")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream stayed open after CloseAll")
	}
}

func TestParseKinds(t *testing.T) {
	if parseKinds("  ") != nil {
		t.Fatal("blank filter should pass everything")
	}
	got := parseKinds("listing_created, ,funds_released")
	if len(got) != 2 || !got[ListingCreated] || !got[FundsReleased] {
		t.Fatalf("unexpected set: %v", got)
	}
}
