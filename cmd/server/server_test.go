package main

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenderprep/internal/llm"
	"tenderprep/internal/template"
)

const docJSON = `{"title":"Согласие на обработку персональных данных","sections":[{"heading":"","content":"Я, представитель ООО Ромашка, телефон [___], даю согласие."}],"signature_block":"Директор ____"}`

// fakeGateway answers chat completions with a fixed status and content.
type fakeGateway struct {
	status  int
	content string
}

func (g *fakeGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	io.Copy(io.Discard, r.Body)
	if g.status != 0 && g.status != http.StatusOK {
		w.WriteHeader(g.status)
		io.WriteString(w, `{"error":{"message":"upstream"}}`)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   llm.DefaultModel,
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": g.content},
			"finish_reason": "stop",
		}},
	})
}

func newTestServer(t *testing.T, g *fakeGateway, apiKey string) (*Server, http.Handler) {
	t.Helper()
	gw := httptest.NewServer(g)
	t.Cleanup(gw.Close)

	cfg := Config{
		DataDir:        t.TempDir(),
		SettingsSecret: "test-secret",
		LLM:            llm.Config{APIKey: apiKey, BaseURL: gw.URL + "/v1", JSONMode: true},
		Thresholds:     template.DefaultThresholds(),
	}
	s, err := newServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, s.routes()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createAnalysis(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/analyses", map[string]string{"title": "Поставка мебели", "procurement_type": "44-fz"})
	require.Equal(t, http.StatusOK, rec.Code)
	var a struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
	return a.ID
}

func upload(t *testing.T, h http.Handler, analysisID, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("analysis_id", analysisID))
	fw, err := mw.CreateFormFile("files", name)
	require.NoError(t, err)
	io.WriteString(fw, content)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

// ========== Generation ==========

func TestGenerate_EndToEnd(t *testing.T) {
	_, h := newTestServer(t, &fakeGateway{content: "```json\n" + docJSON + "\n```"}, "sk-test")
	id := createAnalysis(t, h)

	rec := upload(t, h, id, "izveshchenie.txt", "Извещение о проведении электронного аукциона на поставку офисной мебели.")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/generate", map[string]any{
		"analysisId":   id,
		"documentName": "Согласие на обработку персональных данных",
		"companyData":  map[string]string{"full_name": "ООО Ромашка"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res struct {
		Document struct {
			Title    string `json:"title"`
			Sections []struct {
				Content string `json:"content"`
			} `json:"sections"`
		} `json:"document"`
		HasTemplate bool `json:"hasTemplate"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.HasTemplate)
	assert.NotEmpty(t, res.Document.Title)
	require.NotEmpty(t, res.Document.Sections)
	assert.Contains(t, res.Document.Sections[0].Content, "[___]")

	rec = do(t, h, http.MethodGet, "/api/documents?analysis_id="+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Согласие на обработку персональных данных")

	rec = do(t, h, http.MethodPost, "/api/documents/export", map[string]string{
		"analysis_id": id, "document_name": "Согласие на обработку персональных данных",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")

	rec = do(t, h, http.MethodPost, "/api/documents/export", map[string]string{
		"analysis_id": id, "document_name": "Согласие на обработку персональных данных", "format": "txt",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ООО Ромашка")
}

func TestGenerate_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name    string
		gateway int
		want    int
		message string
	}{
		{"rate limited", 429, 429, "Превышен лимит запросов. Попробуйте позже."},
		{"billing", 402, 402, "Необходимо пополнить баланс AI."},
		{"upstream", 503, 500, "Ошибка AI-сервиса (HTTP 503)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, h := newTestServer(t, &fakeGateway{status: tt.gateway}, "sk-test")
			id := createAnalysis(t, h)
			rec := do(t, h, http.MethodPost, "/api/generate", map[string]string{"analysisId": id, "documentName": "Анкета"})
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.message, errorMessage(t, rec))
		})
	}
}

func TestGenerate_MalformedResponse(t *testing.T) {
	_, h := newTestServer(t, &fakeGateway{content: "Извините, не могу"}, "sk-test")
	id := createAnalysis(t, h)
	rec := do(t, h, http.MethodPost, "/api/generate", map[string]string{"analysisId": id, "documentName": "Анкета"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Не удалось разобрать ответ AI", errorMessage(t, rec))
}

func TestGenerate_InputErrors(t *testing.T) {
	_, h := newTestServer(t, &fakeGateway{content: docJSON}, "sk-test")

	rec := do(t, h, http.MethodPost, "/api/generate", map[string]string{"analysisId": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/generate", map[string]string{"analysisId": "missing", "documentName": "Анкета"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/generate", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestGenerate_MissingAPIKey(t *testing.T) {
	_, h := newTestServer(t, &fakeGateway{content: docJSON}, "")
	id := createAnalysis(t, h)
	rec := do(t, h, http.MethodPost, "/api/generate", map[string]string{"analysisId": id, "documentName": "Анкета"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, msgNoAPIKey, errorMessage(t, rec))
}

// ========== Analyses and files ==========

func TestUpload_RejectsUnknownTypes(t *testing.T) {
	_, h := newTestServer(t, &fakeGateway{}, "sk-test")
	id := createAnalysis(t, h)

	rec := upload(t, h, id, "virus.exe", "MZ")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":0`)

	rec = upload(t, h, "missing", "a.txt", "x")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnalyses_ListAndDelete(t *testing.T) {
	_, h := newTestServer(t, &fakeGateway{}, "sk-test")
	id := createAnalysis(t, h)
	upload(t, h, id, "a.txt", "текст")

	rec := do(t, h, http.MethodGet, "/api/files?analysis_id="+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"a.txt"`)

	rec = do(t, h, http.MethodPost, "/api/analyses/delete", map[string]string{"id": id})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/analyses", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/analyses/delete", map[string]string{"id": id})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ========== Bid amount and company card ==========

func TestBidAmount(t *testing.T) {
	_, h := newTestServer(t, &fakeGateway{}, "sk-test")
	id := createAnalysis(t, h)

	rec := do(t, h, http.MethodPost, "/api/bid-amount", map[string]any{"analysis_id": id, "amount": 1220000, "vat_rate": "22"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var b struct {
		VATAmount   float64 `json:"vat_amount"`
		AmountWords string  `json:"amount_words"`
		VATLabel    string  `json:"vat_label"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, 220000.0, b.VATAmount)
	assert.Equal(t, "Один миллион двести двадцать тысяч рублей 00 копеек", b.AmountWords)
	assert.Equal(t, "22%", b.VATLabel)

	rec = do(t, h, http.MethodGet, "/api/bid-amount?analysis_id="+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"vat_rate":"22"`)

	rec = do(t, h, http.MethodPost, "/api/bid-amount", map[string]any{"amount": 100, "vat_rate": "abc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/bid-amount", map[string]any{"amount": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompany_SaveAndLoad(t *testing.T) {
	_, h := newTestServer(t, &fakeGateway{}, "sk-test")

	rec := do(t, h, http.MethodGet, "/api/company", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/company", map[string]string{"full_name": "ООО Ромашка", "inn": "7701234567"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/company", nil)
	assert.Contains(t, rec.Body.String(), "ООО Ромашка")
}

// ========== Search ==========

func TestSearch(t *testing.T) {
	_, h := newTestServer(t, &fakeGateway{}, "sk-test")
	id := createAnalysis(t, h)
	upload(t, h, id, "izveshchenie.txt", "Извещение о проведении аукциона на поставку офисной мебели")
	upload(t, h, id, "dogovor.txt", "Проект договора поставки, порядок оплаты и ответственность сторон")

	rec := do(t, h, http.MethodPost, "/api/search", map[string]any{"analysis_id": id, "query": "оплаты"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res struct {
		Hits []struct {
			Source string `json:"source"`
		} `json:"hits"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "dogovor.txt", res.Hits[0].Source)
}

// ========== Settings ==========

func TestSettings_MaskedAndSealed(t *testing.T) {
	s, h := newTestServer(t, &fakeGateway{}, "")

	rec := do(t, h, http.MethodGet, "/api/settings", nil)
	assert.Contains(t, rec.Body.String(), `"configured":false`)

	rec = do(t, h, http.MethodPost, "/api/settings", map[string]string{"api_key": "sk-new-key-123456", "model": "openai/gpt-4o"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/settings", nil)
	body := rec.Body.String()
	assert.Contains(t, body, `"api_key":"sk-n...3456"`)
	assert.Contains(t, body, `"configured":true`)
	assert.Contains(t, body, `"model":"openai/gpt-4o"`)

	raw, err := os.ReadFile(filepath.Join(s.cfg.DataDir, "settings.json"))
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(raw), "sk-new-key"), "API key stored in plain text")

	saved := loadSavedSettings(s.settings, s.sealer)
	require.NotNil(t, saved)
	assert.Equal(t, "sk-new-key-123456", saved.APIKey)

	// Echoing the masked key back keeps the real one.
	rec = do(t, h, http.MethodPost, "/api/settings", map[string]string{"api_key": "sk-n...3456"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sk-new-key-123456", loadSavedSettings(s.settings, s.sealer).APIKey)
}

func TestCORSPreflight(t *testing.T) {
	_, h := newTestServer(t, &fakeGateway{}, "sk-test")
	rec := do(t, h, http.MethodOptions, "/api/generate", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
