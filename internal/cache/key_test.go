package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/factlens/factlens/internal/models"
)

func baseRequest() models.ReportRequest {
	return models.ReportRequest{
		Text:          "Did sea levels rise 20cm since 1900?",
		Provider:      "gemini",
		ModelID:       "gemini-2.5-pro",
		ReportKind:    "full",
		PromptVersion: "v7",
		Config:        map[string]string{"temperature": "0.2", "top_p": "0.9"},
		Attachments: []models.Attachment{
			{Name: "notes.txt", Content: []byte("raw notes")},
			{Name: "data.csv", Content: []byte("a,b\n1,2")},
		},
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	assert.Equal(t, DeriveKey(baseRequest()), DeriveKey(baseRequest()))
}

func TestDeriveKeyConfigInsertionOrderIrrelevant(t *testing.T) {
	a := baseRequest()
	a.Config = map[string]string{}
	a.Config["temperature"] = "0.2"
	a.Config["top_p"] = "0.9"
	a.Config["max_tokens"] = "8192"

	b := baseRequest()
	b.Config = map[string]string{}
	b.Config["max_tokens"] = "8192"
	b.Config["top_p"] = "0.9"
	b.Config["temperature"] = "0.2"

	assert.Equal(t, DeriveKey(a), DeriveKey(b))
}

func TestDeriveKeyAttachmentOrderIrrelevant(t *testing.T) {
	a := baseRequest()
	b := baseRequest()
	b.Attachments = []models.Attachment{b.Attachments[1], b.Attachments[0]}
	assert.Equal(t, DeriveKey(a), DeriveKey(b))
}

func TestDeriveKeySensitiveToEveryField(t *testing.T) {
	base := DeriveKey(baseRequest())

	mutations := map[string]func(*models.ReportRequest){
		"text":         func(r *models.ReportRequest) { r.Text += "?" },
		"provider":     func(r *models.ReportRequest) { r.Provider = "openai" },
		"model":        func(r *models.ReportRequest) { r.ModelID = "gpt-4o" },
		"report kind":  func(r *models.ReportRequest) { r.ReportKind = "brief" },
		"prompt ver":   func(r *models.ReportRequest) { r.PromptVersion = "v8" },
		"config value": func(r *models.ReportRequest) { r.Config["temperature"] = "0.3" },
		"config key":   func(r *models.ReportRequest) { r.Config["seed"] = "42" },
		"file content": func(r *models.ReportRequest) { r.Attachments[0].Content = []byte("edited") },
		"file name":    func(r *models.ReportRequest) { r.Attachments[0].Name = "renamed.txt" },
	}
	for name, mutate := range mutations {
		req := baseRequest()
		mutate(&req)
		assert.NotEqual(t, base, DeriveKey(req), "mutation %q must change the key", name)
	}
}

func TestDeriveKeyFieldValuesDoNotCollideAcrossFields(t *testing.T) {
	// Swapping values between labeled fields must not produce the same key.
	a := baseRequest()
	a.Provider, a.ModelID = "x", "y"
	b := baseRequest()
	b.Provider, b.ModelID = "y", "x"
	assert.NotEqual(t, DeriveKey(a), DeriveKey(b))
}

func TestDeriveKeyDelimiterValuesDoNotShiftFieldBoundaries(t *testing.T) {
	// A value carrying the key format's own delimiters must not realign the
	// neighboring field.
	a := baseRequest()
	a.ReportKind, a.Provider = "a;provider=b", "p"
	b := baseRequest()
	b.ReportKind, b.Provider = "a", "b;provider=p"
	assert.NotEqual(t, DeriveKey(a), DeriveKey(b))

	// Same property inside the config map: delimiters in a value must not
	// masquerade as an extra entry.
	c := baseRequest()
	c.Config = map[string]string{"a": "b;c=d"}
	d := baseRequest()
	d.Config = map[string]string{"a": "b", "c": "d"}
	assert.NotEqual(t, DeriveKey(c), DeriveKey(d))
}

func TestDeriveKeyEmptyRequest(t *testing.T) {
	var empty models.ReportRequest
	// Still deterministic, still a full-length hex digest.
	assert.Len(t, DeriveKey(empty), 64)
	assert.Equal(t, DeriveKey(empty), DeriveKey(models.ReportRequest{}))
}
