package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestAmount(t *testing.T) {
	out, err := run(t, "amount", "1220000", "--vat", "22")
	require.NoError(t, err)
	assert.Contains(t, out, "Один миллион двести двадцать тысяч рублей 00 копеек")
	assert.Contains(t, out, "В том числе НДС 22%")
	assert.Contains(t, out, "Двести двадцать тысяч рублей 00 копеек")

	out, err = run(t, "amount", "500,5", "--vat", "none")
	require.NoError(t, err)
	assert.Contains(t, out, "НДС: Без НДС")

	_, err = run(t, "amount", "abc")
	assert.Error(t, err)
	_, err = run(t, "amount", "100", "--vat", "13.5x")
	assert.Error(t, err)
}

func TestExtract(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	dir := t.TempDir()
	a := writeFile(t, dir, "izveshchenie.txt", "Извещение о закупке")
	b := writeFile(t, dir, "scan.pdf", "%PDF-1.4 binary")

	out, err := run(t, "extract", a, b)
	require.NoError(t, err)
	assert.Contains(t, out, "=== izveshchenie.txt ===\nИзвещение о закупке")
	assert.Contains(t, out, "=== scan.pdf ===\n(no text)")

	_, err = run(t, "extract", filepath.Join(dir, "missing.docx"))
	assert.Error(t, err)
}

func TestLoadProfile(t *testing.T) {
	p := writeFile(t, t.TempDir(), "company.yaml", "participant_type: ip\nfull_name: ИП Иванов\ninn: \"770123456789\"\n")
	profile, err := loadProfile(p)
	require.NoError(t, err)
	assert.Equal(t, "ИП Иванов", profile.FullName)
	assert.Equal(t, "770123456789", profile.INN)
	assert.Equal(t, "Индивидуальный предприниматель", profile.TypeLabel())
}

func TestGenerate_WritesJSON(t *testing.T) {
	var lastBody string
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		lastBody = string(raw)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id": "1", "object": "chat.completion", "created": 1, "model": "m",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]string{
					"role":    "assistant",
					"content": `{"title":"Согласие","sections":[{"heading":"","content":"ИП Иванов, телефон [___]"}],"signature_block":"____"}`,
				},
			}},
		})
	}))
	defer gw.Close()
	t.Setenv("LLM_API_KEY", "sk-test")
	t.Setenv("LLM_BASE_URL", gw.URL+"/v1")

	dir := t.TempDir()
	profile := writeFile(t, dir, "company.yaml", "full_name: ИП Иванов\n")
	tender := writeFile(t, dir, "izveshchenie.txt", "Извещение о закупке мебели")
	outPath := filepath.Join(dir, "doc.json")

	_, err := run(t, "generate", "--name", "Согласие на обработку персональных данных",
		"--company", profile, "--amount", "1000", "--out", outPath, tender)
	require.NoError(t, err)

	raw, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var res struct {
		HasTemplate bool `json:"hasTemplate"`
		Document    struct {
			Title string `json:"title"`
		} `json:"document"`
	}
	require.NoError(t, json.Unmarshal(raw, &res))
	assert.False(t, res.HasTemplate)
	assert.Equal(t, "Согласие", res.Document.Title)
	assert.True(t, strings.Contains(lastBody, "ИП Иванов"), "company card not sent")
}

func TestGenerate_RequiresName(t *testing.T) {
	_, err := run(t, "generate")
	assert.Error(t, err)
}

func TestGenerate_NoAPIKey(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	_, err := run(t, "generate", "--name", "Анкета")
	assert.Error(t, err)
}
