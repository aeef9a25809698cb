package cli

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"gagyebu/internal/config"
	applog "gagyebu/internal/log"
	"gagyebu/internal/sheets/memory"
)

func quietLogger() *applog.Logger {
	return applog.New(applog.Config{Output: io.Discard})
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("SQLITE_DB_PATH", filepath.Join(t.TempDir(), "x.db"))
	t.Setenv("PREVIEW_ROWS", "")
	if _, err := LoadConfig(); err != nil {
		t.Fatalf("LoadConfig() = %v", err)
	}

	t.Setenv("PREVIEW_ROWS", "0")
	_, err := LoadConfig()
	if err == nil || !strings.Contains(err.Error(), "invalid preview rows") {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestInitPublisherDisabled(t *testing.T) {
	if c := InitPublisher(quietLogger(), &config.Config{}); c != nil {
		t.Error("expected nil publisher without AMQP_URL")
	}
}

func TestInitMirrorFallsBackToMemory(t *testing.T) {
	m, err := InitMirror(context.Background(), quietLogger(), &config.Config{})
	if err != nil {
		t.Fatalf("InitMirror() = %v", err)
	}
	if _, ok := m.(*memory.Store); !ok {
		t.Errorf("expected memory mirror, got %T", m)
	}
}

func TestSignalContextCancel(t *testing.T) {
	ctx, cancel := SignalContext(quietLogger())
	cancel()
	<-ctx.Done()
}
