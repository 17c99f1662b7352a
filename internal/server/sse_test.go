package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mailpilot/mailpilot/internal/tools"
)

func echoDispatcher(t *testing.T) *tools.Dispatcher {
	t.Helper()
	reg := tools.NewRegistry()
	err := reg.Register(&tools.Descriptor{
		Name:        "echo",
		Description: "Echo the text argument back",
		Args: []tools.ArgSpec{
			{Name: "text", Type: tools.ArgString, Required: true},
		},
		Handler: func(_ context.Context, args map[string]interface{}) (*tools.Result, error) {
			return &tools.Result{Text: args["text"].(string)}, nil
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return tools.NewDispatcher(reg, discardLogger(), nil)
}

func streamServer(t *testing.T) (*StreamServer, *SessionManager) {
	t.Helper()
	manager := NewSessionManager(4, time.Minute, discardLogger(), nil)
	t.Cleanup(manager.Stop)
	return NewStreamServer(manager, echoDispatcher(t), discardLogger()), manager
}

// readEvent scans one SSE event (event + data lines) off the stream.
func readEvent(t *testing.T, r *bufio.Reader) (event, data string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("reading stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data
		}
	}
}

func testStreamFlow(t *testing.T, ssePath, messagePath string) {
	srv, manager := streamServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + ssePath)
	if err != nil {
		t.Fatalf("GET %s: %v", ssePath, err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}

	reader := bufio.NewReader(resp.Body)
	event, data := readEvent(t, reader)
	if event != "endpoint" {
		t.Fatalf("first event = %q, want endpoint", event)
	}
	if !strings.HasPrefix(data, messagePath+"?sessionId=") {
		t.Fatalf("endpoint = %q, want prefix %s?sessionId=", data, messagePath)
	}
	if manager.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", manager.Count())
	}

	post, err := http.Post(ts.URL+data, "application/json",
		strings.NewReader(`{"requestId":"req-1","tool":"echo","arguments":{"text":"ping"}}`))
	if err != nil {
		t.Fatalf("POST message: %v", err)
	}
	defer post.Body.Close()
	if post.StatusCode != http.StatusAccepted {
		t.Fatalf("POST = %d, want 202", post.StatusCode)
	}

	event, data = readEvent(t, reader)
	if event != "message" {
		t.Fatalf("second event = %q, want message", event)
	}
	var toolResp tools.Response
	if err := json.Unmarshal([]byte(data), &toolResp); err != nil {
		t.Fatalf("decoding response event: %v\n%s", err, data)
	}
	if toolResp.RequestID != "req-1" || toolResp.State != tools.StateCompleted {
		t.Fatalf("response = %+v, want req-1 completed", toolResp)
	}
	if toolResp.Result == nil || toolResp.Result.Text != "ping" {
		t.Fatalf("result = %+v, want echoed ping", toolResp.Result)
	}
}

func TestStream_EndToEnd(t *testing.T) {
	testStreamFlow(t, "/sse", "/messages")
}

// The /mcp-prefixed aliases behave identically to the bare endpoints.
func TestStream_AliasEndpoints(t *testing.T) {
	testStreamFlow(t, "/mcp/sse", "/mcp/messages")
}

func TestStream_UnknownSession(t *testing.T) {
	srv, _ := streamServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/messages?sessionId=nope", "application/json",
		strings.NewReader(`{"requestId":"r","tool":"echo","arguments":{}}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown session = %d, want 404", resp.StatusCode)
	}
}

func TestStream_InvalidPayload(t *testing.T) {
	srv, manager := streamServer(t)
	session := manager.NewSession(context.Background())
	session.Open()

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/messages?sessionId="+session.ID, "application/json",
		strings.NewReader(`{not json`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad payload = %d, want 400", resp.StatusCode)
	}
}

// openStream connects one SSE stream and returns its reader plus the full
// message URL announced by the endpoint event.
func openStream(t *testing.T, ts *httptest.Server) (*bufio.Reader, string) {
	t.Helper()
	resp, err := http.Get(ts.URL + "/sse")
	if err != nil {
		t.Fatalf("GET /sse: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	reader := bufio.NewReader(resp.Body)
	event, data := readEvent(t, reader)
	if event != "endpoint" {
		t.Fatalf("first event = %q, want endpoint", event)
	}
	return reader, ts.URL + data
}

func postInvocation(t *testing.T, url, body string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST message: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST = %d, want 202", resp.StatusCode)
	}
}

// Two concurrent sessions submit work that completes out of submission
// order; each stream must see only its own response, correlated by
// requestId.
func TestStream_SessionIsolation(t *testing.T) {
	release := make(chan struct{})
	reg := tools.NewRegistry()
	mustRegister := func(d *tools.Descriptor) {
		if err := reg.Register(d); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	mustRegister(&tools.Descriptor{
		Name:        "slow",
		Description: "Complete once released",
		Handler: func(ctx context.Context, _ map[string]interface{}) (*tools.Result, error) {
			select {
			case <-release:
				return &tools.Result{Text: "slow done"}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	})
	mustRegister(&tools.Descriptor{
		Name:        "fast",
		Description: "Complete immediately",
		Handler: func(context.Context, map[string]interface{}) (*tools.Result, error) {
			return &tools.Result{Text: "fast done"}, nil
		},
	})
	dispatcher := tools.NewDispatcher(reg, discardLogger(), nil)

	manager := NewSessionManager(4, time.Minute, discardLogger(), nil)
	t.Cleanup(manager.Stop)
	srv := NewStreamServer(manager, dispatcher, discardLogger())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	slowReader, slowURL := openStream(t, ts)
	fastReader, fastURL := openStream(t, ts)
	if manager.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", manager.Count())
	}

	// Submitted first, completes last.
	postInvocation(t, slowURL, `{"requestId":"req-slow","tool":"slow","arguments":{}}`)
	postInvocation(t, fastURL, `{"requestId":"req-fast","tool":"fast","arguments":{}}`)

	// The fast session's response arrives while the slow invocation is
	// still in flight, and carries only its own requestId.
	event, data := readEvent(t, fastReader)
	if event != "message" {
		t.Fatalf("fast event = %q, want message", event)
	}
	var fastResp tools.Response
	if err := json.Unmarshal([]byte(data), &fastResp); err != nil {
		t.Fatalf("decoding fast response: %v\n%s", err, data)
	}
	if fastResp.RequestID != "req-fast" || fastResp.State != tools.StateCompleted {
		t.Fatalf("fast response = %+v, want req-fast completed", fastResp)
	}

	close(release)

	event, data = readEvent(t, slowReader)
	if event != "message" {
		t.Fatalf("slow event = %q, want message", event)
	}
	var slowResp tools.Response
	if err := json.Unmarshal([]byte(data), &slowResp); err != nil {
		t.Fatalf("decoding slow response: %v\n%s", err, data)
	}
	if slowResp.RequestID != "req-slow" || slowResp.State != tools.StateCompleted {
		t.Fatalf("slow response = %+v, want req-slow completed", slowResp)
	}
	if slowResp.Result == nil || slowResp.Result.Text != "slow done" {
		t.Fatalf("slow result = %+v, crossed wires with the fast session", slowResp.Result)
	}
}

// A client disconnecting mid-execution cancels the in-flight handler via the
// session context, and its response is dropped rather than delivered.
func TestStream_DisconnectCancelsInFlight(t *testing.T) {
	started := make(chan struct{})
	cancelled := make(chan struct{})
	reg := tools.NewRegistry()
	err := reg.Register(&tools.Descriptor{
		Name:        "hang",
		Description: "Block until the invocation context ends",
		Handler: func(ctx context.Context, _ map[string]interface{}) (*tools.Result, error) {
			close(started)
			<-ctx.Done()
			close(cancelled)
			return nil, ctx.Err()
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	dispatcher := tools.NewDispatcher(reg, discardLogger(), nil)

	manager := NewSessionManager(4, time.Minute, discardLogger(), nil)
	t.Cleanup(manager.Stop)
	srv := NewStreamServer(manager, dispatcher, discardLogger())
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/sse", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /sse: %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	event, data := readEvent(t, reader)
	if event != "endpoint" {
		t.Fatalf("first event = %q, want endpoint", event)
	}
	postInvocation(t, ts.URL+data, `{"requestId":"req-1","tool":"hang","arguments":{}}`)

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never started")
	}

	// Everything the stream carries after this point, if anything, would be
	// a response leaking past the disconnect.
	leaked := make(chan string, 1)
	go func() {
		line, err := reader.ReadString('\n')
		if err != nil {
			close(leaked)
			return
		}
		leaked <- line
	}()

	cancel()

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight handler context not cancelled on disconnect")
	}

	select {
	case line, ok := <-leaked:
		if ok {
			t.Fatalf("stream delivered data after disconnect: %q", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close after disconnect")
	}

	deadline := time.Now().Add(2 * time.Second)
	for manager.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session not closed after client disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStream_DisconnectClosesSession(t *testing.T) {
	srv, manager := streamServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/sse", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /sse: %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	readEvent(t, reader)
	if manager.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", manager.Count())
	}

	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for manager.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session not closed after client disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
