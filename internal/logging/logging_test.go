package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestPionFactoryRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	l := PionFactory(logger).NewLogger("ice")
	l.Debugf("hidden %d", 1)
	l.Tracef("hidden %d", 2)
	l.Warnf("candidate %s failed", "host")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("below-level records leaked: %s", out)
	}
	if !strings.Contains(out, "candidate host failed") || !strings.Contains(out, "scope=ice") {
		t.Fatalf("warn record missing scope or message: %s", out)
	}
	if !strings.Contains(out, "level=WARN") {
		t.Fatalf("wrong level: %s", out)
	}
}
