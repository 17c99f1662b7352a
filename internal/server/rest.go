package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mailpilot/mailpilot/internal/gmail"
	"github.com/mailpilot/mailpilot/internal/instrumentation"
	"github.com/mailpilot/mailpilot/internal/logging"
	"github.com/mailpilot/mailpilot/internal/notify"
	"github.com/mailpilot/mailpilot/internal/summary"
	"github.com/mailpilot/mailpilot/internal/tools/batch"
	"github.com/mailpilot/mailpilot/internal/tools/mailtools"
)

// RESTServer is the HTTP facade for non-MCP consumers such as home
// automation. It shares the gateway, categorizer, and summary pipeline with
// the tool layer; every route is a thin JSON wrapper over the same
// operations the tools expose.
type RESTServer struct {
	sc     *ServerContext
	sink   *notify.Sink
	logger *slog.Logger
	apiKey string
}

// NewRESTServer creates the facade. sink may be nil when no webhook URL is
// configured; the trigger route then reports the digest without pushing it.
func NewRESTServer(sc *ServerContext, sink *notify.Sink) *RESTServer {
	return &RESTServer{
		sc:     sc,
		sink:   sink,
		logger: sc.Logger().With(logging.Component("rest")),
		apiKey: sc.Settings().APIKey,
	}
}

// Handler returns the chi router for the facade.
func (s *RESTServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.recordRequests)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAPIKey)

		r.Get("/api/unread", s.handleUnread)
		r.Get("/api/unread/categories", s.handleUnreadByCategory)
		r.Get("/api/summary/daily", s.handleDailySummary)
		r.Get("/api/summary/daily/text", s.handleDailySummaryText)
		r.Get("/api/summary/category/{id}", s.handleCategorySummary)
		r.Get("/api/stats", s.handleStats)
		r.Get("/api/labels", s.handleListLabels)
		r.Post("/api/labels", s.handleCreateLabel)
		r.Delete("/api/labels/{id}", s.handleDeleteLabel)
		r.Get("/api/categories", s.handleCategories)
		r.Post("/api/messages/markRead", s.handleMarkRead)
		r.Post("/api/messages/send", s.handleSend)
		r.Post("/api/webhook/trigger", s.handleWebhookTrigger)
	})

	return r
}

// recordRequests emits the request counter and latency histogram using the
// chi route pattern, not the raw path, to keep label cardinality bounded.
func (s *RESTServer) recordRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if m := s.sc.Metrics(); m != nil {
			pattern := chi.RouteContext(r.Context()).RoutePattern()
			if pattern == "" {
				pattern = "unmatched"
			}
			m.RecordHTTPRequest(r.Context(), r.Method, pattern, ww.Status(), time.Since(start))
		}
	})
}

// requireAPIKey rejects requests without the configured key. A missing key
// setting leaves the facade open, which is the expected mode on a private
// network.
func (s *RESTServer) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("X-API-Key")
		if key == "" {
			const prefix = "Bearer "
			if auth := r.Header.Get("Authorization"); len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
				key = auth[len(prefix):]
			}
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			s.writeError(w, http.StatusUnauthorized, errors.New("invalid or missing API key"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *RESTServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	authenticated := s.sc.CheckAuth(r.Context()) == nil
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"authenticated": authenticated,
	})
}

func (s *RESTServer) handleUnread(w http.ResponseWriter, r *http.Request) {
	gw, err := s.sc.Gateway(r.Context())
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}
	max := int64(queryInt(r, "max", 50))
	msgs, err := gw.ListUnread(r.Context(), "", max)
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}

	cat := s.sc.Categorizer()
	category := r.URL.Query().Get("category")
	if category != "" && !knownCategoryID(cat.Order(), category) {
		s.writeError(w, http.StatusBadRequest, errors.New("unknown category "+category))
		return
	}

	out := make([]summary.CategorizedMessage, 0, len(msgs))
	for i := range msgs {
		id := cat.Categorize(&msgs[i])
		if category != "" && id != category {
			continue
		}
		out = append(out, summary.CategorizedMessage{Message: msgs[i], CategoryID: id})
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"messages": out,
		"count":    len(out),
	})
}

func (s *RESTServer) handleUnreadByCategory(w http.ResponseWriter, r *http.Request) {
	gw, err := s.sc.Gateway(r.Context())
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}
	msgs, err := gw.ListUnread(r.Context(), "", int64(queryInt(r, "max", 500)))
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}

	cat := s.sc.Categorizer()
	grouped := make(map[string][]summary.CategorizedMessage)
	for _, id := range cat.Order() {
		grouped[id] = []summary.CategorizedMessage{}
	}
	for i := range msgs {
		id := cat.Categorize(&msgs[i])
		grouped[id] = append(grouped[id], summary.CategorizedMessage{Message: msgs[i], CategoryID: id})
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"categories":  grouped,
		"totalUnread": len(msgs),
	})
}

func (s *RESTServer) handleDailySummary(w http.ResponseWriter, r *http.Request) {
	sum, _, err := s.dailySummary(r)
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sum)
}

func (s *RESTServer) handleDailySummaryText(w http.ResponseWriter, r *http.Request) {
	_, text, err := s.dailySummary(r)
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

func (s *RESTServer) dailySummary(r *http.Request) (*summary.Summary, string, error) {
	settings := s.sc.Settings()
	hours := queryInt(r, "hours", settings.LookbackHours)
	limit := queryInt(r, "limit", settings.HighlightLimit)
	return mailtools.DailySummary(r.Context(), s.sc.ToolDeps(), hours, limit)
}

func (s *RESTServer) handleCategorySummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cat := s.sc.Categorizer()
	if !knownCategoryID(cat.Order(), id) {
		s.writeError(w, http.StatusNotFound, errors.New("unknown category "+id))
		return
	}
	sum, _, err := s.dailySummary(r)
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}
	entry := sum.PerCategory[id]
	if entry == nil {
		entry = &summary.Entry{Highlights: []summary.CategorizedMessage{}}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"category": id,
		"summary":  entry,
	})
}

func (s *RESTServer) handleStats(w http.ResponseWriter, r *http.Request) {
	gw, err := s.sc.Gateway(r.Context())
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}
	msgs, err := gw.ListUnread(r.Context(), "", 500)
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}
	cat := s.sc.Categorizer()
	perCategory := make(map[string]int)
	for _, id := range cat.Order() {
		perCategory[id] = 0
	}
	for i := range msgs {
		perCategory[cat.Categorize(&msgs[i])]++
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"totalUnread":       len(msgs),
		"perCategoryUnread": perCategory,
	})
}

func (s *RESTServer) handleListLabels(w http.ResponseWriter, r *http.Request) {
	gw, err := s.sc.Gateway(r.Context())
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}
	labels, err := gw.Labels(r.Context())
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"labels": labels})
}

func (s *RESTServer) handleCreateLabel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("name is required"))
		return
	}
	gw, err := s.sc.Gateway(r.Context())
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}
	label, err := gw.CreateLabel(r.Context(), req.Name)
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, label)
}

func (s *RESTServer) handleDeleteLabel(w http.ResponseWriter, r *http.Request) {
	gw, err := s.sc.Gateway(r.Context())
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}
	if err := gw.DeleteLabel(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeGatewayError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *RESTServer) handleCategories(w http.ResponseWriter, r *http.Request) {
	cat := s.sc.Categorizer()
	type categoryInfo struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Priority int    `json:"priority"`
	}
	out := make([]categoryInfo, 0, len(cat.Rules())+1)
	for _, rule := range cat.Rules() {
		out = append(out, categoryInfo{ID: rule.ID, Name: rule.Name, Priority: rule.Priority})
	}
	out = append(out, categoryInfo{ID: "other", Name: "Other"})
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"categories": out})
}

func (s *RESTServer) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs   []string `json:"ids"`
		Query string   `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if len(req.IDs) == 0 && req.Query == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("ids or query is required"))
		return
	}
	gw, err := s.sc.Gateway(r.Context())
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}

	if len(req.IDs) > 0 {
		outcomes := gw.MarkRead(r.Context(), req.IDs)
		s.writeJSON(w, http.StatusOK, batch.Summarize(outcomes))
		return
	}
	matched, outcomes, err := gw.MarkReadByQuery(r.Context(), req.Query, 500)
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"matchedCount": matched,
		"summary":      batch.Summarize(outcomes),
	})
}

func (s *RESTServer) handleSend(w http.ResponseWriter, r *http.Request) {
	var req gmail.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}
	if req.To == "" || req.Subject == "" || req.Body == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("to, subject and body are required"))
		return
	}
	gw, err := s.sc.Gateway(r.Context())
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}
	id, err := gw.Send(r.Context(), &req)
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"messageId": id})
}

// handleWebhookTrigger computes the daily digest and pushes its text form to
// the notification sink. The push is fire-and-forget: a sink failure is
// logged by the sink, never surfaced to the caller.
func (s *RESTServer) handleWebhookTrigger(w http.ResponseWriter, r *http.Request) {
	sum, text, err := s.dailySummary(r)
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}
	if m := s.sc.Metrics(); m != nil {
		m.RecordDigest(r.Context(), instrumentation.TriggerWebhook)
	}
	delivered := false
	if s.sink != nil {
		s.sink.NotifyAsync(text)
		delivered = true
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"totalUnread": sum.TotalUnread,
		"total":       sum.Total,
		"delivered":   delivered,
	})
}

func (s *RESTServer) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", logging.Err(err))
	}
}

func (s *RESTServer) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeGatewayError maps the mailbox error taxonomy onto HTTP statuses:
// transient upstream trouble is 503, a rejected or unauthenticated call is
// 502, a cancelled request is 499 in spirit but reported as 503.
func (s *RESTServer) writeGatewayError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	case gmail.IsTransient(err):
		status = http.StatusServiceUnavailable
	case gmail.IsPermanent(err):
		status = http.StatusBadGateway
	}
	s.logger.Warn("request failed", logging.Err(err))
	s.writeError(w, status, err)
}

func knownCategoryID(order []string, id string) bool {
	if id == "other" {
		return true
	}
	for _, o := range order {
		if o == id {
			return true
		}
	}
	return false
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
