package outfmt

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"text", Text, false},
		{"", Text, false},
		{"json", JSON, false},
		{"yaml", Text, true},
	}

	for _, tt := range tests {
		got, err := Parse(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestModeContext(t *testing.T) {
	ctx := context.Background()
	if IsJSON(ctx) {
		t.Error("expected Text default")
	}
	ctx = WithMode(ctx, JSON)
	if !IsJSON(ctx) {
		t.Error("expected JSON after WithMode")
	}
	if ModeFromContext(ctx).String() != "json" {
		t.Errorf("Mode.String() = %q, want json", ModeFromContext(ctx).String())
	}
}

func TestQueryContext(t *testing.T) {
	ctx := context.Background()
	if GetQuery(ctx) != "" {
		t.Error("expected empty query default")
	}
	ctx = WithQuery(ctx, ".content")
	if GetQuery(ctx) != ".content" {
		t.Errorf("GetQuery = %q, want .content", GetQuery(ctx))
	}
}

func TestWriteJSONFiltered(t *testing.T) {
	var buf bytes.Buffer
	v := map[string]any{"content": "hello", "roomID": "abc"}

	if err := WriteJSONFiltered(&buf, v, ".content"); err != nil {
		t.Fatalf("WriteJSONFiltered error: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != `"hello"` {
		t.Errorf("filtered output = %q, want %q", got, `"hello"`)
	}

	buf.Reset()
	if err := WriteJSONFiltered(&buf, v, ""); err != nil {
		t.Fatalf("WriteJSONFiltered error: %v", err)
	}
	if !strings.Contains(buf.String(), `"roomID": "abc"`) {
		t.Errorf("unfiltered output missing field: %q", buf.String())
	}
}
