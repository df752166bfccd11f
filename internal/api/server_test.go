package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hazyhaar/pagepatch/hitsink"
	"github.com/hazyhaar/pagepatch/internal/config"
	"github.com/hazyhaar/pagepatch/internal/runner"
)

type fakeRunner struct {
	pages   []runner.PageStatus
	ran     []config.PageConfig
	applied []string
	failOn  string
}

func (f *fakeRunner) Pages() []runner.PageStatus { return f.pages }

func (f *fakeRunner) RunPage(_ context.Context, cfg config.PageConfig) error {
	f.ran = append(f.ran, cfg)
	return nil
}

func (f *fakeRunner) Apply(_ context.Context, pageID, patch string, _ []string) error {
	if patch == f.failOn {
		return fmt.Errorf("unknown patch %q", patch)
	}
	f.applied = append(f.applied, pageID+"/"+patch)
	return nil
}

func (f *fakeRunner) ClosePage(pageID string) error {
	if pageID != "p1" {
		return fmt.Errorf("unknown page %q", pageID)
	}
	return nil
}

func newTestServer(t *testing.T, fr *fakeRunner, stream *hitsink.Stream) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(NewServer(fr, nil, stream, nil).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthAndCatalog(t *testing.T) {
	ts := newTestServer(t, &fakeRunner{}, nil)

	res, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Errorf("healthz: %d", res.StatusCode)
	}

	res, err = http.Get(ts.URL + "/api/v1/patches")
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	if err := json.NewDecoder(res.Body).Decode(&names); err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if len(names) == 0 {
		t.Error("patches: empty catalog")
	}
}

func TestPages(t *testing.T) {
	fr := &fakeRunner{pages: []runner.PageStatus{
		{ID: "p1", URL: "https://example.com", Patches: []string{"set-attr"}},
	}}
	ts := newTestServer(t, fr, nil)

	res, err := http.Get(ts.URL + "/api/v1/pages")
	if err != nil {
		t.Fatal(err)
	}
	var pages []runner.PageStatus
	if err := json.NewDecoder(res.Body).Decode(&pages); err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if len(pages) != 1 || pages[0].ID != "p1" {
		t.Errorf("pages: %+v", pages)
	}
}

func TestRunPage(t *testing.T) {
	fr := &fakeRunner{}
	ts := newTestServer(t, fr, nil)

	body := `{"id":"p2","url":"https://example.org","patches":[{"name":"set-attr","args":["video","muted","true"]}]}`
	res, err := http.Post(ts.URL+"/api/v1/pages", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status: %d", res.StatusCode)
	}
	if len(fr.ran) != 1 || fr.ran[0].ID != "p2" || len(fr.ran[0].Patches) != 1 {
		t.Errorf("ran: %+v", fr.ran)
	}

	res, err = http.Post(ts.URL+"/api/v1/pages", "application/json", strings.NewReader(`{"id":"x"}`))
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("missing url: %d", res.StatusCode)
	}
}

func TestApplyPatch(t *testing.T) {
	fr := &fakeRunner{failOn: "bogus"}
	ts := newTestServer(t, fr, nil)

	res, err := http.Post(ts.URL+"/api/v1/pages/p1/patches", "application/json",
		strings.NewReader(`{"name":"prevent-timer","args":["settimeout","adblock"]}`))
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", res.StatusCode)
	}
	if len(fr.applied) != 1 || fr.applied[0] != "p1/prevent-timer" {
		t.Errorf("applied: %v", fr.applied)
	}

	res, err = http.Post(ts.URL+"/api/v1/pages/p1/patches", "application/json",
		strings.NewReader(`{"name":"bogus"}`))
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("bogus patch: %d", res.StatusCode)
	}
}

func TestClosePage(t *testing.T) {
	ts := newTestServer(t, &fakeRunner{}, nil)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/pages/p1", nil)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Errorf("close: %d", res.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/pages/nope", nil)
	res, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("close unknown: %d", res.StatusCode)
	}
}

func TestHitsWithoutStore(t *testing.T) {
	ts := newTestServer(t, &fakeRunner{}, nil)

	res, err := http.Get(ts.URL + "/api/v1/hits")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotImplemented {
		t.Errorf("hits without store: %d", res.StatusCode)
	}
}

func TestHitStream(t *testing.T) {
	stream := hitsink.NewStream(nil)
	ts := newTestServer(t, &fakeRunner{}, stream)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/hits/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// The server attaches the connection just after the handshake; resend
	// until the broadcast reaches the client.
	hit := hitsink.NewHit("click-sequence", "https://example.com", "p1", "3 targets clicked")
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				_ = stream.Send(context.Background(), hit)
				time.Sleep(20 * time.Millisecond)
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got hitsink.Hit
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatal(err)
	}
	if got.ID != hit.ID || got.Patch != "click-sequence" {
		t.Errorf("streamed hit: %+v", got)
	}
}

func TestHitStream_DisconnectDetaches(t *testing.T) {
	stream := hitsink.NewStream(nil)
	ts := newTestServer(t, &fakeRunner{}, stream)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/hits/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return stream.Clients() == 1 }, "client never attached")

	// Going away must detach the client without waiting for a broadcast.
	conn.Close()
	waitFor(t, func() bool { return stream.Clients() == 0 }, "dead client never detached")
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}
