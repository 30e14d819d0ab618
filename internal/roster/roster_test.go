package roster

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

const validJSON = `[
	{"id": "p1", "name": "Smoke One", "type": "Extra 330", "hex": ["abcd12"], "callsign_regex": ["^BA6$"]},
	{"id": "p2", "name": "Smoke Two", "hex": [], "callsign_regex": []}
]`

const validYAML = `
- id: p1
  name: Smoke One
  type: Extra 330
  role: Lead
  hex: [abcd12]
  callsign_regex: ["^BA6$"]
`

func TestDefault(t *testing.T) {
	list := Default()
	if len(list) == 0 {
		t.Fatal("Expected embedded roster to have performers")
	}
	if err := Validate(list); err != nil {
		t.Errorf("Embedded roster failed validation: %v", err)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		format    Format
		expectErr bool
		expectLen int
	}{
		{"valid json", validJSON, FormatJSON, false, 2},
		{"valid yaml", validYAML, FormatYAML, false, 1},
		{"empty array", `[]`, FormatJSON, false, 0},
		{"not an array", `{"id": "p1"}`, FormatJSON, true, 0},
		{"null", `null`, FormatJSON, true, 0},
		{"missing name", `[{"id": "p1", "hex": [], "callsign_regex": []}]`, FormatJSON, true, 0},
		{"missing id", `[{"name": "x", "hex": [], "callsign_regex": []}]`, FormatJSON, true, 0},
		{"missing hex", `[{"id": "p1", "name": "x", "callsign_regex": []}]`, FormatJSON, true, 0},
		{"hex not an array", `[{"id": "p1", "name": "x", "hex": "abcd12", "callsign_regex": []}]`, FormatJSON, true, 0},
		{"duplicate id", `[{"id": "p1", "name": "a", "hex": [], "callsign_regex": []}, {"id": "p1", "name": "b", "hex": [], "callsign_regex": []}]`, FormatJSON, true, 0},
		{"broken json", `[{`, FormatJSON, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := Parse([]byte(tt.data), tt.format)
			if tt.expectErr {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if len(list) != tt.expectLen {
				t.Errorf("Expected %d performers, got %d", tt.expectLen, len(list))
			}
		})
	}
}

func TestParse_OptionalFields(t *testing.T) {
	list, err := Parse([]byte(validYAML), FormatYAML)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	p := list[0]
	if p.Role == nil || *p.Role != "Lead" {
		t.Errorf("Expected role Lead, got %v", p.Role)
	}
	if p.Image != nil {
		t.Errorf("Expected nil image, got %v", *p.Image)
	}
	if len(p.CallsignRegex) != 1 || p.CallsignRegex[0] != "^BA6$" {
		t.Errorf("Unexpected callsign patterns: %v", p.CallsignRegex)
	}
}

func TestFormatFor(t *testing.T) {
	tests := map[string]Format{
		"performers.json":                     FormatJSON,
		"roster.yaml":                         FormatYAML,
		"/etc/tracker/roster.YML":             FormatYAML,
		"https://example.com/roster.yml?v=2":  FormatYAML,
		"https://example.com/performers.json": FormatJSON,
		"https://example.com/roster":          FormatJSON,
	}
	for source, expected := range tests {
		if got := FormatFor(source); got != expected {
			t.Errorf("FormatFor(%q) = %v, expected %v", source, got, expected)
		}
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "performers.json")
	if err := os.WriteFile(good, []byte(validJSON), 0o644); err != nil {
		t.Fatalf("Failed to write roster: %v", err)
	}
	bad := filepath.Join(dir, "broken.json")
	if err := os.WriteFile(bad, []byte(`[{"id": "p1"}]`), 0o644); err != nil {
		t.Fatalf("Failed to write roster: %v", err)
	}

	list, notice := Load(context.Background(), good, nil, zerolog.Nop())
	if notice != "" || len(list) != 2 || list[0].ID != "p1" {
		t.Errorf("Expected file roster, got %d performers, notice %q", len(list), notice)
	}

	list, notice = Load(context.Background(), bad, nil, zerolog.Nop())
	if notice != InvalidNotice {
		t.Errorf("Expected invalid notice, got %q", notice)
	}
	if len(list) != len(Default()) {
		t.Errorf("Expected embedded roster, got %d performers", len(list))
	}

	list, notice = Load(context.Background(), filepath.Join(dir, "missing.json"), nil, zerolog.Nop())
	if notice != InvalidNotice || len(list) != len(Default()) {
		t.Errorf("Expected embedded roster for missing file, got %d performers, notice %q", len(list), notice)
	}
}

func TestLoad_URL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/roster.yaml":
			_, _ = w.Write([]byte(validYAML))
		case "/performers.json":
			_, _ = w.Write([]byte(validJSON))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	list, notice := Load(context.Background(), server.URL+"/roster.yaml", server.Client(), zerolog.Nop())
	if notice != "" || len(list) != 1 {
		t.Errorf("Expected YAML roster from URL, got %d performers, notice %q", len(list), notice)
	}

	list, notice = Load(context.Background(), server.URL+"/performers.json", server.Client(), zerolog.Nop())
	if notice != "" || len(list) != 2 {
		t.Errorf("Expected JSON roster from URL, got %d performers, notice %q", len(list), notice)
	}

	_, notice = Load(context.Background(), server.URL+"/missing.json", server.Client(), zerolog.Nop())
	if notice != InvalidNotice {
		t.Errorf("Expected invalid notice for 404, got %q", notice)
	}
}

func TestLoad_EmptySource(t *testing.T) {
	list, notice := Load(context.Background(), "", nil, zerolog.Nop())
	if notice != "" {
		t.Errorf("Expected no notice, got %q", notice)
	}
	if len(list) != len(Default()) {
		t.Errorf("Expected embedded roster, got %d performers", len(list))
	}
}
