package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mailpilot/mailpilot/internal/config"
	"github.com/mailpilot/mailpilot/internal/gmail"
	"github.com/mailpilot/mailpilot/internal/notify"
)

// stubProvider implements gmail.Provider with overridable function fields.
type stubProvider struct {
	fetchMessages func(ctx context.Context, query, pageToken string, pageSize int64) ([]gmail.Message, string, error)
	fetchMessage  func(ctx context.Context, id string) (*gmail.Message, error)
	fetchLabels   func(ctx context.Context) ([]gmail.Label, error)
	createLabel   func(ctx context.Context, name string) (*gmail.Label, error)
	deleteLabel   func(ctx context.Context, id string) error
	renameLabel   func(ctx context.Context, id, newName string) (*gmail.Label, error)
	modifyMessage func(ctx context.Context, id string, add, remove []string) error
	sendMessage   func(ctx context.Context, req *gmail.SendRequest) (string, error)
}

func (s *stubProvider) FetchMessages(ctx context.Context, query, pageToken string, pageSize int64) ([]gmail.Message, string, error) {
	return s.fetchMessages(ctx, query, pageToken, pageSize)
}

func (s *stubProvider) FetchMessage(ctx context.Context, id string) (*gmail.Message, error) {
	return s.fetchMessage(ctx, id)
}

func (s *stubProvider) FetchLabels(ctx context.Context) ([]gmail.Label, error) {
	return s.fetchLabels(ctx)
}

func (s *stubProvider) CreateLabel(ctx context.Context, name string) (*gmail.Label, error) {
	return s.createLabel(ctx, name)
}

func (s *stubProvider) DeleteLabel(ctx context.Context, id string) error {
	return s.deleteLabel(ctx, id)
}

func (s *stubProvider) RenameLabel(ctx context.Context, id, newName string) (*gmail.Label, error) {
	return s.renameLabel(ctx, id, newName)
}

func (s *stubProvider) ModifyMessage(ctx context.Context, id string, add, remove []string) error {
	return s.modifyMessage(ctx, id, add, remove)
}

func (s *stubProvider) SendMessage(ctx context.Context, req *gmail.SendRequest) (string, error) {
	return s.sendMessage(ctx, req)
}

var restCategories = []config.Category{
	{
		ID:       "work",
		Name:     "Work",
		Priority: 1,
		Matchers: config.Matchers{Senders: []string{"@corp.example"}},
	},
	{
		ID:       "alerts",
		Name:     "Alerts",
		Priority: 0,
		Matchers: config.Matchers{Subjects: []string{"alert"}},
	},
}

func unreadStub() *stubProvider {
	now := time.Now()
	return &stubProvider{
		fetchMessages: func(_ context.Context, _, _ string, _ int64) ([]gmail.Message, string, error) {
			return []gmail.Message{
				{ID: "m1", Sender: "boss@corp.example", Subject: "standup", ReceivedAt: now, IsUnread: true},
				{ID: "m2", Sender: "noreply@shop.example", Subject: "receipt", ReceivedAt: now.Add(-time.Hour), IsUnread: true},
			}, "", nil
		},
	}
}

func restContext(t *testing.T, stub *stubProvider, settings config.Settings) *ServerContext {
	t.Helper()
	sc := NewServerContext(context.Background(), settings, restCategories, discardLogger())
	if stub != nil {
		sc.SetGateway(gmail.NewGateway(stub, nil, gmail.GatewayOptions{
			MaxPages:   5,
			MaxRetries: 1,
			Timeout:    30 * time.Second,
		}))
	}
	return sc
}

func doJSON(t *testing.T, handler http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reqBody *strings.Reader
	if body == "" {
		reqBody = strings.NewReader("")
	} else {
		reqBody = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reqBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("response is not valid JSON: %v\n%s", err, rec.Body.String())
		}
	}
	return rec, decoded
}

func TestREST_Health(t *testing.T) {
	sc := restContext(t, nil, config.DefaultSettings())
	handler := NewRESTServer(sc, nil).Handler()

	rec, body := doJSON(t, handler, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /health = %d, want 200", rec.Code)
	}
	if body["status"] != "ok" {
		t.Fatalf("status = %v, want ok", body["status"])
	}
	// No credentials configured in tests.
	if body["authenticated"] != false {
		t.Fatalf("authenticated = %v, want false", body["authenticated"])
	}
}

func TestREST_Unread(t *testing.T) {
	sc := restContext(t, unreadStub(), config.DefaultSettings())
	handler := NewRESTServer(sc, nil).Handler()

	rec, body := doJSON(t, handler, http.MethodGet, "/api/unread", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/unread = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if body["count"] != float64(2) {
		t.Fatalf("count = %v, want 2", body["count"])
	}
}

func TestREST_UnreadCategoryFilter(t *testing.T) {
	sc := restContext(t, unreadStub(), config.DefaultSettings())
	handler := NewRESTServer(sc, nil).Handler()

	rec, body := doJSON(t, handler, http.MethodGet, "/api/unread?category=work", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body["count"] != float64(1) {
		t.Fatalf("count = %v, want 1 work message", body["count"])
	}

	rec, _ = doJSON(t, handler, http.MethodGet, "/api/unread?category=nonsense", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown category = %d, want 400", rec.Code)
	}
}

func TestREST_UnreadByCategory(t *testing.T) {
	sc := restContext(t, unreadStub(), config.DefaultSettings())
	handler := NewRESTServer(sc, nil).Handler()

	rec, body := doJSON(t, handler, http.MethodGet, "/api/unread/categories", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body["totalUnread"] != float64(2) {
		t.Fatalf("totalUnread = %v, want 2", body["totalUnread"])
	}
	categories, ok := body["categories"].(map[string]interface{})
	if !ok {
		t.Fatalf("categories missing: %v", body)
	}
	// Every configured category appears, even the empty ones.
	for _, id := range []string{"work", "alerts", "other"} {
		if _, ok := categories[id]; !ok {
			t.Fatalf("category %s missing from grouping", id)
		}
	}
}

func TestREST_Stats(t *testing.T) {
	sc := restContext(t, unreadStub(), config.DefaultSettings())
	handler := NewRESTServer(sc, nil).Handler()

	rec, body := doJSON(t, handler, http.MethodGet, "/api/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	per, ok := body["perCategoryUnread"].(map[string]interface{})
	if !ok {
		t.Fatalf("perCategoryUnread missing: %v", body)
	}
	if per["work"] != float64(1) || per["other"] != float64(1) {
		t.Fatalf("perCategoryUnread = %v, want work=1 other=1", per)
	}
}

func TestREST_DailySummaryText(t *testing.T) {
	sc := restContext(t, unreadStub(), config.DefaultSettings())
	handler := NewRESTServer(sc, nil).Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/summary/daily/text", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("Content-Type = %q, want text/plain", ct)
	}
	if !strings.Contains(rec.Body.String(), "Email Summary") {
		t.Fatalf("digest missing header: %q", rec.Body.String())
	}
}

func TestREST_CategorySummary(t *testing.T) {
	sc := restContext(t, unreadStub(), config.DefaultSettings())
	handler := NewRESTServer(sc, nil).Handler()

	rec, body := doJSON(t, handler, http.MethodGet, "/api/summary/category/work", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body["category"] != "work" {
		t.Fatalf("category = %v, want work", body["category"])
	}

	rec, _ = doJSON(t, handler, http.MethodGet, "/api/summary/category/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown category = %d, want 404", rec.Code)
	}
}

func TestREST_Categories(t *testing.T) {
	sc := restContext(t, nil, config.DefaultSettings())
	handler := NewRESTServer(sc, nil).Handler()

	rec, body := doJSON(t, handler, http.MethodGet, "/api/categories", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	raw, _ := json.Marshal(body["categories"])
	for _, id := range []string{"work", "alerts", "other"} {
		if !strings.Contains(string(raw), id) {
			t.Fatalf("categories missing %s: %s", id, raw)
		}
	}
}

func TestREST_Labels(t *testing.T) {
	stub := unreadStub()
	stub.fetchLabels = func(context.Context) ([]gmail.Label, error) {
		return []gmail.Label{{ID: "Label_1", Name: "Receipts"}}, nil
	}
	stub.createLabel = func(_ context.Context, name string) (*gmail.Label, error) {
		return &gmail.Label{ID: "Label_2", Name: name}, nil
	}
	stub.deleteLabel = func(context.Context, string) error { return nil }

	sc := restContext(t, stub, config.DefaultSettings())
	handler := NewRESTServer(sc, nil).Handler()

	rec, _ := doJSON(t, handler, http.MethodGet, "/api/labels", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/labels = %d, want 200", rec.Code)
	}

	rec, body := doJSON(t, handler, http.MethodPost, "/api/labels", `{"name":"Travel"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /api/labels = %d, want 201", rec.Code)
	}
	if body["name"] != "Travel" {
		t.Fatalf("created label = %v, want Travel", body["name"])
	}

	rec, _ = doJSON(t, handler, http.MethodPost, "/api/labels", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("POST without name = %d, want 400", rec.Code)
	}

	rec, _ = doJSON(t, handler, http.MethodDelete, "/api/labels/Label_1", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE /api/labels = %d, want 204", rec.Code)
	}
}

func TestREST_MarkRead(t *testing.T) {
	var modified atomic.Int32
	stub := unreadStub()
	stub.modifyMessage = func(context.Context, string, []string, []string) error {
		modified.Add(1)
		return nil
	}

	sc := restContext(t, stub, config.DefaultSettings())
	handler := NewRESTServer(sc, nil).Handler()

	rec, body := doJSON(t, handler, http.MethodPost, "/api/messages/markRead", `{"ids":["m1","m2"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if body["succeeded"] != float64(2) {
		t.Fatalf("succeeded = %v, want 2", body["succeeded"])
	}
	if modified.Load() != 2 {
		t.Fatalf("modifyMessage called %d times, want 2", modified.Load())
	}

	rec, _ = doJSON(t, handler, http.MethodPost, "/api/messages/markRead", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty request = %d, want 400", rec.Code)
	}
}

func TestREST_Send(t *testing.T) {
	stub := unreadStub()
	stub.sendMessage = func(_ context.Context, req *gmail.SendRequest) (string, error) {
		if req.To != "a@example.com" {
			t.Errorf("To = %q, want a@example.com", req.To)
		}
		return "msg-42", nil
	}

	sc := restContext(t, stub, config.DefaultSettings())
	handler := NewRESTServer(sc, nil).Handler()

	rec, body := doJSON(t, handler, http.MethodPost, "/api/messages/send",
		`{"to":"a@example.com","subject":"hi","body":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if body["messageId"] != "msg-42" {
		t.Fatalf("messageId = %v, want msg-42", body["messageId"])
	}

	rec, _ = doJSON(t, handler, http.MethodPost, "/api/messages/send", `{"to":"a@example.com"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("incomplete send = %d, want 400", rec.Code)
	}
}

func TestREST_WebhookTrigger(t *testing.T) {
	var delivered atomic.Int32
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer webhook.Close()

	sink, err := notify.NewSink(webhook.URL, discardLogger())
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}

	sc := restContext(t, unreadStub(), config.DefaultSettings())
	handler := NewRESTServer(sc, sink).Handler()

	rec, body := doJSON(t, handler, http.MethodPost, "/api/webhook/trigger", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if body["delivered"] != true {
		t.Fatalf("delivered = %v, want true", body["delivered"])
	}

	// Delivery is asynchronous.
	deadline := time.Now().Add(2 * time.Second)
	for delivered.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("webhook never received the digest")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestREST_WebhookTriggerWithoutSink(t *testing.T) {
	sc := restContext(t, unreadStub(), config.DefaultSettings())
	handler := NewRESTServer(sc, nil).Handler()

	rec, body := doJSON(t, handler, http.MethodPost, "/api/webhook/trigger", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body["delivered"] != false {
		t.Fatalf("delivered = %v, want false without a sink", body["delivered"])
	}
}

func TestREST_APIKey(t *testing.T) {
	settings := config.DefaultSettings()
	settings.APIKey = "secret"
	sc := restContext(t, unreadStub(), settings)
	handler := NewRESTServer(sc, nil).Handler()

	rec, _ := doJSON(t, handler, http.MethodGet, "/api/unread", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no key = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/unread", nil)
	req.Header.Set("X-API-Key", "secret")
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Fatalf("with key = %d, want 200", rec2.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/unread", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec3 := httptest.NewRecorder()
	handler.ServeHTTP(rec3, req)
	if rec3.Code != http.StatusOK {
		t.Fatalf("bearer key = %d, want 200", rec3.Code)
	}

	// Health stays open for probes.
	rec4, _ := doJSON(t, handler, http.MethodGet, "/health", "")
	if rec4.Code != http.StatusOK {
		t.Fatalf("/health with key set = %d, want 200", rec4.Code)
	}
}

func TestREST_UnauthenticatedGateway(t *testing.T) {
	sc := restContext(t, nil, config.DefaultSettings())
	handler := NewRESTServer(sc, nil).Handler()

	rec, _ := doJSON(t, handler, http.MethodGet, "/api/unread", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("unauthenticated = %d, want 502", rec.Code)
	}
}
