package pages

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestErrorPage_EscapesMessage(t *testing.T) {
	var buf bytes.Buffer
	if err := ErrorPage(404, `<script>alert("x")</script>`).Render(context.Background(), &buf); err != nil {
		t.Fatalf("render: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "404 Not Found") {
		t.Errorf("expected status title, got %q", out)
	}
	if strings.Contains(out, "<script>") {
		t.Error("message was not escaped")
	}
}
