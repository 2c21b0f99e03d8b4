package main

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestServerURL(t *testing.T) {
	tests := []struct{ in, want string }{
		{"0.0.0.0:8000", "127.0.0.1:8000"},
		{":9000", "127.0.0.1:9000"},
		{"scanner-3.local:8000", "scanner-3.local:8000"},
	}
	for _, tt := range tests {
		if got := serverURL(tt.in); got != tt.want {
			t.Errorf("serverURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildIntent(t *testing.T) {
	tests := []struct {
		args    []string
		want    map[string]any
		wantErr bool
	}{
		{args: []string{"capture"}, want: map[string]any{"intent": "capture"}},
		{args: []string{"zoom", "0.3", "0.7"}, want: map[string]any{"intent": "zoom_to", "x": 0.3, "y": 0.7}},
		{args: []string{"quality", "best-of-3"}, want: map[string]any{"intent": "quality_mode", "mode": "best-of-3"}},
		{args: []string{"lighting", "uv"}, want: map[string]any{"intent": "lighting", "mode": "uv"}},
		{args: []string{"zoom", "middle"}, wantErr: true},
		{args: []string{"selfdestruct"}, wantErr: true},
	}
	for _, tt := range tests {
		data, err := buildIntent(tt.args)
		if tt.wantErr {
			if err == nil {
				t.Errorf("buildIntent(%v) succeeded, want error", tt.args)
			}
			continue
		}
		if err != nil {
			t.Errorf("buildIntent(%v) error = %v", tt.args, err)
			continue
		}
		var got map[string]any
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatal(err)
		}
		for k, v := range tt.want {
			if got[k] != v {
				t.Errorf("buildIntent(%v)[%q] = %v, want %v", tt.args, k, got[k], v)
			}
		}
	}
}

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable([]string{"A", "B"}, [][]string{{"only-a"}})
	if !strings.Contains(out, "only-a") {
		t.Errorf("table output missing cell: %s", out)
	}
}
