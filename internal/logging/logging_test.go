package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/partcat/partcat/internal/config"
	"github.com/partcat/partcat/pkg/types"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("expected debug level, got %s", logger.GetLevel())
	}

	ctx := types.WithRequestContext(context.Background(), &types.RequestContext{RequestID: "req-1", UserName: "alice"})
	WithRequest(ctx, Component(logger, "dispatcher")).Info("hello")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if line["component"] != "dispatcher" || line["request_id"] != "req-1" || line["user"] != "alice" {
		t.Errorf("unexpected fields %v", line)
	}
}

func TestNewInvalidLevel(t *testing.T) {
	if _, err := New(config.LoggingConfig{Level: "loud"}, nil); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestComponentWithoutLogger(t *testing.T) {
	entry := Component(nil, "x")
	if entry == nil || entry.Data["component"] != "x" {
		t.Errorf("unexpected entry %v", entry)
	}
}
