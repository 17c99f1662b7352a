package mailtools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mailpilot/mailpilot/internal/classify"
	"github.com/mailpilot/mailpilot/internal/config"
	"github.com/mailpilot/mailpilot/internal/gmail"
	"github.com/mailpilot/mailpilot/internal/summary"
	"github.com/mailpilot/mailpilot/internal/tools"
	"github.com/mailpilot/mailpilot/internal/tools/batch"
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

var testCategories = []config.Category{
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

func testDeps(stub *stubProvider) Deps {
	gw := gmail.NewGateway(stub, nil, gmail.GatewayOptions{MaxPages: 5, MaxRetries: 1, Timeout: 30 * time.Second})
	return Deps{
		Gateway:        func(ctx context.Context) (*gmail.Gateway, error) { return gw, nil },
		Categorizer:    classify.NewCategorizer(testCategories),
		Categories:     testCategories,
		HighlightLimit: 3,
		LookbackHours:  24,
	}
}

func testRegistry(t *testing.T, deps Deps) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	if err := Register(reg, deps); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return reg
}

func invoke(t *testing.T, reg *tools.Registry, name string, args map[string]interface{}) (*tools.Result, error) {
	t.Helper()
	desc, ok := reg.Get(name)
	if !ok {
		t.Fatalf("tool %s not registered", name)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return desc.Handler(context.Background(), args)
}

func TestRegister_AllTools(t *testing.T) {
	reg := testRegistry(t, testDeps(&stubProvider{}))

	want := []string{
		"gmail_search", "gmail_get_email", "gmail_list_unread",
		"gmail_daily_summary", "gmail_category_summary", "gmail_inbox_stats",
		"gmail_list_labels", "gmail_create_label", "gmail_delete_label",
		"gmail_rename_label", "gmail_get_categories", "gmail_mark_read_by_ids",
		"gmail_mark_read_by_query", "gmail_mark_unread_by_ids",
		"gmail_send_email", "gmail_add_labels", "gmail_remove_labels",
	}
	for _, name := range want {
		if _, ok := reg.Get(name); !ok {
			t.Errorf("tool %s not registered", name)
		}
	}
	if got := len(reg.Names()); got != len(want) {
		t.Errorf("registered %d tools, want %d", got, len(want))
	}
}

func TestSearchTool(t *testing.T) {
	now := time.Now()
	stub := &stubProvider{
		fetchMessages: func(ctx context.Context, query, pageToken string, pageSize int64) ([]gmail.Message, string, error) {
			return []gmail.Message{
				{ID: "1", Sender: "boss@corp.example", Subject: "Standup", ReceivedAt: now},
			}, "", nil
		},
	}
	reg := testRegistry(t, testDeps(stub))

	res, err := invoke(t, reg, "gmail_search", map[string]interface{}{"query": "standup"})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	structured := res.Structured.(map[string]interface{})
	if structured["count"] != 1 {
		t.Errorf("count = %v, want 1", structured["count"])
	}
	if !strings.Contains(res.Text, "Standup") || !strings.Contains(res.Text, "[work]") {
		t.Errorf("unexpected text rendering: %q", res.Text)
	}
}

func TestListUnreadTool_CategoryFilter(t *testing.T) {
	now := time.Now()
	stub := &stubProvider{
		fetchMessages: func(ctx context.Context, query, pageToken string, pageSize int64) ([]gmail.Message, string, error) {
			return []gmail.Message{
				{ID: "1", Sender: "boss@corp.example", Subject: "Standup", IsUnread: true, ReceivedAt: now},
				{ID: "2", Sender: "shop@deals.example", Subject: "Sale", IsUnread: true, ReceivedAt: now},
			}, "", nil
		},
	}
	reg := testRegistry(t, testDeps(stub))

	res, err := invoke(t, reg, "gmail_list_unread", map[string]interface{}{"category": "work"})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	structured := res.Structured.(map[string]interface{})
	msgs := structured["messages"].([]summary.CategorizedMessage)
	if len(msgs) != 1 || msgs[0].ID != "1" {
		t.Errorf("expected only the work message, got %+v", msgs)
	}
}

func TestListUnreadTool_UnknownCategory(t *testing.T) {
	reg := testRegistry(t, testDeps(&stubProvider{}))

	_, err := invoke(t, reg, "gmail_list_unread", map[string]interface{}{"category": "nope"})
	if err == nil {
		t.Fatal("expected validation error for unknown category")
	}
	if obj := tools.Classify(err); obj.Kind != tools.KindValidation {
		t.Errorf("error kind = %q, want validation", obj.Kind)
	}
}

func TestDailySummaryTool(t *testing.T) {
	now := time.Now()
	var gotQuery string
	stub := &stubProvider{
		fetchMessages: func(ctx context.Context, query, pageToken string, pageSize int64) ([]gmail.Message, string, error) {
			gotQuery = query
			return []gmail.Message{
				{ID: "1", Sender: "boss@corp.example", Subject: "Review", IsUnread: true, ReceivedAt: now},
				{ID: "2", Sender: "noreply@other.example", Subject: "Newsletter", ReceivedAt: now.Add(-time.Hour)},
			}, "", nil
		},
	}
	reg := testRegistry(t, testDeps(stub))

	res, err := invoke(t, reg, "gmail_daily_summary", nil)
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	if !strings.HasPrefix(gotQuery, "after:") {
		t.Errorf("expected an after: window query, got %q", gotQuery)
	}

	s := res.Structured.(*summary.Summary)
	if s.Total != 2 || s.TotalUnread != 1 {
		t.Errorf("Total/TotalUnread = %d/%d, want 2/1", s.Total, s.TotalUnread)
	}
	if !strings.HasPrefix(res.Text, "Email Summary (1 unread)") {
		t.Errorf("unexpected digest header: %q", res.Text)
	}
}

func TestCategorySummaryTool(t *testing.T) {
	now := time.Now()
	stub := &stubProvider{
		fetchMessages: func(ctx context.Context, query, pageToken string, pageSize int64) ([]gmail.Message, string, error) {
			return []gmail.Message{
				{ID: "1", Sender: "boss@corp.example", Subject: "Review", IsUnread: true, ReceivedAt: now},
			}, "", nil
		},
	}
	reg := testRegistry(t, testDeps(stub))

	res, err := invoke(t, reg, "gmail_category_summary", map[string]interface{}{"category": "work"})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if !strings.HasPrefix(res.Text, "work: 1 message(s), 1 unread") {
		t.Errorf("unexpected text: %q", res.Text)
	}

	_, err = invoke(t, reg, "gmail_category_summary", map[string]interface{}{"category": "bogus"})
	if err == nil {
		t.Error("expected validation error for unknown category")
	}
}

func TestInboxStatsTool(t *testing.T) {
	now := time.Now()
	stub := &stubProvider{
		fetchMessages: func(ctx context.Context, query, pageToken string, pageSize int64) ([]gmail.Message, string, error) {
			return []gmail.Message{
				{ID: "1", Sender: "boss@corp.example", Subject: "Standup", IsUnread: true, ReceivedAt: now},
				{ID: "2", Sender: "mon@corp.example", Subject: "ALERT: disk full", IsUnread: true, ReceivedAt: now},
				{ID: "3", Sender: "shop@deals.example", Subject: "Sale", IsUnread: true, ReceivedAt: now},
			}, "", nil
		},
	}
	reg := testRegistry(t, testDeps(stub))

	res, err := invoke(t, reg, "gmail_inbox_stats", nil)
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	structured := res.Structured.(map[string]interface{})
	if structured["totalUnread"] != 3 {
		t.Errorf("totalUnread = %v, want 3", structured["totalUnread"])
	}
	perCategory := structured["perCategoryUnread"].(map[string]int)
	// "ALERT: disk full" matches alerts (priority 0) even though the sender
	// also matches work.
	if perCategory["alerts"] != 1 || perCategory["work"] != 1 || perCategory[classify.Other] != 1 {
		t.Errorf("unexpected per-category counts: %v", perCategory)
	}
}

func TestGetCategoriesTool(t *testing.T) {
	reg := testRegistry(t, testDeps(&stubProvider{}))

	res, err := invoke(t, reg, "gmail_get_categories", nil)
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if !strings.Contains(res.Text, "Work") || !strings.Contains(res.Text, "Other") {
		t.Errorf("unexpected text: %q", res.Text)
	}
}

func TestMarkReadByIDsTool(t *testing.T) {
	var modified []string
	stub := &stubProvider{
		modifyMessage: func(ctx context.Context, id string, add, remove []string) error {
			modified = append(modified, id)
			return nil
		},
	}
	reg := testRegistry(t, testDeps(stub))

	res, err := invoke(t, reg, "gmail_mark_read_by_ids", map[string]interface{}{
		"ids": []interface{}{"a", "b"},
	})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	s := res.Structured.(batch.Summary)
	if s.Total != 2 || s.Succeeded != 2 {
		t.Errorf("summary = %+v, want 2/2", s)
	}
	if len(modified) != 2 {
		t.Errorf("modified %d messages, want 2", len(modified))
	}
}

func TestAddLabelsTool_ResolvesNames(t *testing.T) {
	var gotAdd []string
	stub := &stubProvider{
		fetchLabels: func(ctx context.Context) ([]gmail.Label, error) {
			return []gmail.Label{
				{ID: "Label_7", Name: "Receipts", Type: "user"},
			}, nil
		},
		modifyMessage: func(ctx context.Context, id string, add, remove []string) error {
			gotAdd = add
			return nil
		},
	}
	reg := testRegistry(t, testDeps(stub))

	_, err := invoke(t, reg, "gmail_add_labels", map[string]interface{}{
		"ids":    "m1",
		"labels": "receipts",
	})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if len(gotAdd) != 1 || gotAdd[0] != "Label_7" {
		t.Errorf("expected label name resolved to Label_7, got %v", gotAdd)
	}

	_, err = invoke(t, reg, "gmail_add_labels", map[string]interface{}{
		"ids":    "m1",
		"labels": "no-such-label",
	})
	if err == nil {
		t.Error("expected validation error for unknown label")
	}
}

func TestSendEmailTool(t *testing.T) {
	var sent *gmail.SendRequest
	stub := &stubProvider{
		sendMessage: func(ctx context.Context, req *gmail.SendRequest) (string, error) {
			sent = req
			return "msg-9", nil
		},
	}
	reg := testRegistry(t, testDeps(stub))

	res, err := invoke(t, reg, "gmail_send_email", map[string]interface{}{
		"to":      []interface{}{"a@example.com", "b@example.com"},
		"subject": "Hello",
		"body":    "Hi there",
	})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	if sent == nil || sent.To != "a@example.com, b@example.com" {
		t.Errorf("unexpected send request: %+v", sent)
	}
	structured := res.Structured.(map[string]interface{})
	if structured["messageId"] != "msg-9" {
		t.Errorf("messageId = %v, want msg-9", structured["messageId"])
	}
}

func TestGatewayUnavailable(t *testing.T) {
	deps := testDeps(&stubProvider{})
	deps.Gateway = func(ctx context.Context) (*gmail.Gateway, error) {
		return nil, &gmail.PermanentError{Err: errors.New("not authenticated: run mailpilot auth")}
	}
	reg := testRegistry(t, deps)

	_, err := invoke(t, reg, "gmail_list_labels", nil)
	if err == nil {
		t.Fatal("expected gateway error to propagate")
	}
	if !gmail.IsPermanent(err) {
		t.Errorf("expected permanent error, got %v", err)
	}
}
