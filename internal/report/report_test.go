package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"

	"subhunt/internal/results"
)

func plain(t *testing.T) {
	t.Helper()
	old := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = old })
}

func sizep(n int64) *int64 { return &n }

func TestFoundLine(t *testing.T) {
	plain(t)

	tests := []struct {
		host string
		e    results.Entry
		want string
	}{
		{"mail.example.com", results.Entry{IP: "1.2.3.4"}, "  mail.example.com : [DNS]"},
		{"www.example.com", results.Entry{Protocol: "https", Status: 200}, "  www.example.com : [https] [200]"},
		{"api.example.com", results.Entry{Protocol: "http", Status: 404, Size: sizep(37)}, "  api.example.com : [http] [404] (37 bytes)"},
	}
	for _, tt := range tests {
		if got := foundLine(tt.host, tt.e); got != tt.want {
			t.Errorf("foundLine(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}

func TestStatusTagUnknownClass(t *testing.T) {
	plain(t)
	if got := statusTag(999); got != "[999]" {
		t.Errorf("statusTag(999) = %q", got)
	}
}

func TestFoundPrintsHeaderOnce(t *testing.T) {
	plain(t)
	var buf bytes.Buffer
	c := NewConsole(&buf, 10)

	c.Found("a.example.com", results.Entry{IP: "1.1.1.1"})
	c.Found("b.example.com", results.Entry{IP: "2.2.2.2"})

	out := buf.String()
	if n := strings.Count(out, "Found Subdomains"); n != 1 {
		t.Errorf("header printed %d times, want 1", n)
	}
	if !strings.Contains(out, "a.example.com : [DNS]") || !strings.Contains(out, "b.example.com : [DNS]") {
		t.Errorf("missing found lines in output:\n%s", out)
	}
}

func TestUpdateReprintsOnNonTTY(t *testing.T) {
	plain(t)
	var buf bytes.Buffer
	c := NewConsole(&buf, 10)

	c.Found("a.example.com", results.Entry{Protocol: "http", Status: 404})
	c.Update("a.example.com", results.Entry{Protocol: "http", Status: 404, Size: sizep(37)})

	out := buf.String()
	if !strings.Contains(out, "(37 bytes)") {
		t.Errorf("expected enriched line in output:\n%s", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("cursor control sequences must not be written to a non-terminal:\n%s", out)
	}
}

func TestUpdateUnknownHostFallsBackToFound(t *testing.T) {
	plain(t)
	var buf bytes.Buffer
	c := NewConsole(&buf, 10)

	c.Update("new.example.com", results.Entry{Protocol: "https", Status: 200})
	if !strings.Contains(buf.String(), "new.example.com") {
		t.Errorf("expected host to be printed:\n%s", buf.String())
	}
}
