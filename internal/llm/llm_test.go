package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"tenderprep/internal/prompt"
)

const docJSON = `{"title":"Анкета участника","sections":[{"heading":"1. Сведения","content":"Наименование: ООО Ромашка\nБИК: [___]"}],"signature_block":"Директор ____"}`

// fakeGateway serves /v1/chat/completions with a fixed status and body and
// records the last request.
type fakeGateway struct {
	status  int
	content string
	body    string
	calls   atomic.Int32
	last    atomic.Value
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.calls.Add(1)
	if r.URL.Path != "/v1/chat/completions" {
		http.NotFound(w, r)
		return
	}
	raw, _ := io.ReadAll(r.Body)
	g.last.Store(string(raw))

	if g.status != 0 && g.status != http.StatusOK {
		w.WriteHeader(g.status)
		io.WriteString(w, g.body)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   DefaultModel,
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": g.content},
			"finish_reason": "stop",
		}},
	})
}

func newTestClient(t *testing.T, g *fakeGateway) *Client {
	t.Helper()
	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

// ========== NewClient ==========

func TestNewClient_MissingCredential(t *testing.T) {
	_, err := NewClient(Config{APIKey: "  "})
	if !errors.Is(err, ErrMissingCredential) {
		t.Errorf("err = %v, want ErrMissingCredential", err)
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(Config{APIKey: "k"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Model() != DefaultModel || c.cfg.VisionModel != DefaultModel || c.cfg.BaseURL != DefaultBaseURL {
		t.Errorf("cfg = %+v, want defaults", c.cfg)
	}
}

// ========== Response recovery ==========

func TestParseDocument_Plain(t *testing.T) {
	doc, err := ParseDocument(docJSON, "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "Анкета участника" || len(doc.Sections) != 1 || doc.SignatureBlock != "Директор ____" {
		t.Errorf("doc = %+v", doc)
	}
}

func TestParseDocument_FencedEqualsPlain(t *testing.T) {
	plain, err := ParseDocument(docJSON, "x")
	if err != nil {
		t.Fatalf("plain: %v", err)
	}
	for _, raw := range []string{
		"```json\n" + docJSON + "\n```",
		"```\n" + docJSON + "\n```",
		"```JSON " + docJSON + "```",
	} {
		got, err := ParseDocument(raw, "x")
		if err != nil {
			t.Fatalf("fenced %q: %v", raw[:8], err)
		}
		if got.Title != plain.Title || got.Sections[0] != plain.Sections[0] || got.SignatureBlock != plain.SignatureBlock {
			t.Errorf("fenced parse = %+v, want %+v", got, plain)
		}
	}
}

func TestParseDocument_BraceScanning(t *testing.T) {
	raw := "Вот готовый документ:\n\n" + docJSON + "\n\nЕсли нужно, могу доработать."
	doc, err := ParseDocument(raw, "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "Анкета участника" {
		t.Errorf("title = %q", doc.Title)
	}
}

func TestParseDocument_TrailingCommaInRecoveredSpan(t *testing.T) {
	raw := `Ответ: {"title":"Т","sections":[{"heading":"","content":"текст"},],}`
	if _, err := ParseDocument(raw, "x"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseDocument_Malformed(t *testing.T) {
	for _, raw := range []string{"", "Не могу помочь", "{not json}", `{"title":"T","sections":[]}`} {
		_, err := ParseDocument(raw, "x")
		if kind, ok := KindOf(err); !ok || kind != MalformedResponse {
			t.Errorf("ParseDocument(%q) err = %v, want MalformedResponse", raw, err)
		}
	}
}

func TestParseDocument_MissingTitleRepaired(t *testing.T) {
	doc, err := ParseDocument(`{"sections":[{"heading":"","content":"строка 1\\nстрока 2"}]}`, "Согласие")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "Согласие" {
		t.Errorf("title = %q, want fallback", doc.Title)
	}
	if doc.Sections[0].Content != "строка 1\nстрока 2" {
		t.Errorf("content = %q", doc.Sections[0].Content)
	}
}

// ========== Error classification ==========

func TestGenerateDocument_ErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   Kind
		http   int
	}{
		{429, `{"error":{"message":"Too many requests","type":"rate_limit_exceeded"}}`, RateLimited, 429},
		{402, `Payment Required`, BillingRequired, 402},
		{500, `{"error":{"message":"boom","type":"server_error"}}`, UpstreamError, 500},
		{503, `unavailable`, UpstreamError, 500},
	}
	for _, tt := range tests {
		c := newTestClient(t, &fakeGateway{status: tt.status, body: tt.body})
		_, err := c.GenerateDocument(context.Background(), prompt.Prompt{System: "s", User: "u"}, "Анкета")

		var e *Error
		if !errors.As(err, &e) {
			t.Fatalf("status %d: err = %v, want *Error", tt.status, err)
		}
		if e.Kind != tt.want {
			t.Errorf("status %d: kind = %v, want %v", tt.status, e.Kind, tt.want)
		}
		if e.HTTPStatus() != tt.http {
			t.Errorf("status %d: HTTPStatus = %d, want %d", tt.status, e.HTTPStatus(), tt.http)
		}
		if e.Message == "" {
			t.Errorf("status %d: empty message", tt.status)
		}
	}
}

func TestGenerateDocument_NoRetry(t *testing.T) {
	g := &fakeGateway{status: 429, body: `{"error":{"message":"slow down"}}`}
	c := newTestClient(t, g)
	c.GenerateDocument(context.Background(), prompt.Prompt{System: "s", User: "u"}, "x")
	if n := g.calls.Load(); n != 1 {
		t.Errorf("gateway called %d times, want 1", n)
	}
}

func TestGenerateDocument_Success(t *testing.T) {
	g := &fakeGateway{content: "```json\n" + docJSON + "\n```"}
	c := newTestClient(t, g)
	doc, err := c.GenerateDocument(context.Background(), prompt.Prompt{System: "system text", User: "user text"}, "x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "Анкета участника" {
		t.Errorf("title = %q", doc.Title)
	}
	req, _ := g.last.Load().(string)
	if !strings.Contains(req, `"system text"`) || !strings.Contains(req, `"user text"`) {
		t.Errorf("request body = %s", req)
	}
}

func TestTranscribe_SendsDataURI(t *testing.T) {
	g := &fakeGateway{content: "Текст со скана"}
	c := newTestClient(t, g)
	text, err := c.Transcribe(context.Background(), []byte("%PDF-1.4"), "application/pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Текст со скана" {
		t.Errorf("text = %q", text)
	}
	req, _ := g.last.Load().(string)
	if !strings.Contains(req, "data:application/pdf;base64,JVBERi0xLjQ=") {
		t.Errorf("request missing data URI: %s", req)
	}
	if !strings.Contains(req, `"image_url"`) {
		t.Errorf("request missing image_url part: %s", req)
	}
}

func TestTransportFailureIsUpstream(t *testing.T) {
	c, err := NewClient(Config{APIKey: "k", BaseURL: "http://127.0.0.1:1/v1"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = c.Complete(context.Background(), "s", "u")
	if kind, ok := KindOf(err); !ok || kind != UpstreamError {
		t.Errorf("err = %v, want UpstreamError", err)
	}
}
