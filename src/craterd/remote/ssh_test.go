package remote

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestLastJSONLine(t *testing.T) {
	tests := []struct {
		name string
		out  string
		want string
	}{
		{"single line", `{"status":"succeeded"}`, `{"status":"succeeded"}`},
		{"noise before result", "cloning repo\nbuilding image\n{\"status\":\"succeeded\"}", `{"status":"succeeded"}`},
		{"trailing newline", "{\"status\":\"failed\"}\n", `{"status":"failed"}`},
		{"trailing blank lines", "{\"status\":\"failed\"}\n\n\n", `{"status":"failed"}`},
		{"empty output", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(lastJSONLine([]byte(tt.out))); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestLastJSONLine_ParsesAsResult(t *testing.T) {
	out := "fetching sources\nstep 1/3 done\n{\"status\":\"succeeded\",\"document\":{\"build_id\":\"b1\"}}"

	var result WorkerResult
	if err := json.Unmarshal(lastJSONLine([]byte(out)), &result); err != nil {
		t.Fatalf("parsing result line: %v", err)
	}
	if result.Status != WorkerSucceeded {
		t.Errorf("expected succeeded, got %s", result.Status)
	}
	if len(result.Document) == 0 {
		t.Error("expected embedded document")
	}
}

func TestTail(t *testing.T) {
	if got := tail("short", 512); got != "short" {
		t.Errorf("short input must pass through, got %q", got)
	}

	long := strings.Repeat("x", 600)
	got := tail(long, 512)
	if !strings.HasPrefix(got, "...") {
		t.Errorf("truncated output should be marked, got prefix %q", got[:8])
	}
	if len(got) != 512+len("...") {
		t.Errorf("expected 515 bytes, got %d", len(got))
	}

	if got := tail("  padded  ", 512); got != "padded" {
		t.Errorf("expected surrounding whitespace trimmed, got %q", got)
	}
}
