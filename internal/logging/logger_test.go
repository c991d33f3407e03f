package logging

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T, level zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(level)
	SetLogger(zap.New(core))
	setCategories(nil)
	t.Cleanup(func() {
		SetLogger(nil)
		setCategories(nil)
	})
	return logs
}

// TestAllCategoriesLog tests that every category writes with its category field
func TestAllCategoriesLog(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	categories := []Category{
		CategoryBoot,
		CategoryAPI,
		CategoryPerception,
		CategoryRetrieval,
		CategoryExtract,
		CategoryContext,
		CategoryArticulation,
		CategoryCommand,
		CategoryStore,
		CategoryHTTP,
		CategorySession,
	}

	for _, cat := range categories {
		if !IsCategoryEnabled(cat) {
			t.Errorf("Category %s should be enabled", cat)
		}
		Get(cat).Info("Test info message for %s", cat)
	}

	if logs.Len() != len(categories) {
		t.Fatalf("expected %d entries, got %d", len(categories), logs.Len())
	}
	for i, entry := range logs.All() {
		got := entry.ContextMap()["category"]
		if got != string(categories[i]) {
			t.Errorf("entry %d: expected category %s, got %v", i, categories[i], got)
		}
	}
}

func TestNoopBeforeInitialize(t *testing.T) {
	SetLogger(nil)
	if IsCategoryEnabled(CategoryBoot) {
		t.Error("categories should be disabled without a backend")
	}
	// Must not panic
	Get(CategoryStore).Error("dropped %d", 1)
	Retrieval("dropped")
	WithRequestID(CategoryAPI, "req-1").Info("dropped")
}

func TestCategoryFilter(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)
	setCategories(map[string]bool{"store": false})

	Store("hidden")
	Command("visible")

	if logs.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", logs.Len())
	}
	if logs.All()[0].Message != "visible" {
		t.Errorf("unexpected message %q", logs.All()[0].Message)
	}
}

func TestLevelFiltering(t *testing.T) {
	logs := observe(t, zapcore.WarnLevel)

	ContextDebug("debug")
	Context("info")
	ContextWarn("warn")
	CommandError("error")

	if logs.Len() != 2 {
		t.Fatalf("expected 2 entries at warn+, got %d", logs.Len())
	}
}

func TestRequestLoggerFields(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	WithRequestID(CategoryAPI, "req-42").WithField("group", "g1").Info("generated %d chars", 12)

	entries := logs.FilterField(zap.String("req", "req-42")).All()
	if len(entries) != 1 {
		t.Fatalf("expected request-scoped entry, got %d", len(entries))
	}
	if entries[0].Message != "generated 12 chars" {
		t.Errorf("unexpected message %q", entries[0].Message)
	}
	if entries[0].ContextMap()["group"] != "g1" {
		t.Errorf("missing group field: %v", entries[0].ContextMap())
	}
}

func TestTimerThreshold(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	timer := StartTimer(CategoryExtract, "slow op")
	time.Sleep(5 * time.Millisecond)
	timer.StopWithThreshold(time.Millisecond)

	warned := logs.FilterLevelExact(zapcore.WarnLevel).All()
	if len(warned) != 1 || !strings.Contains(warned[0].Message, "slow op") {
		t.Errorf("expected one slow-op warning, got %v", warned)
	}
}

func TestAuditEvents(t *testing.T) {
	logs := observe(t, zapcore.InfoLevel)

	a := Audit("req-7", "g1", "u1")
	a.IntentParsed("explicit_file", "Q3 report.pdf", false)
	a.CommandFailed("task_assignment", 2, errors.New("disk full"))

	entries := logs.FilterLoggerName("audit").All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}
	failed := entries[1].ContextMap()
	if failed["event"] != "command_failed" || failed["error"] != "disk full" {
		t.Errorf("unexpected audit fields: %v", failed)
	}
}

func TestInitializeWritesFile(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "logs", "credence.log")

	if err := Initialize(Config{Level: "debug", Format: "json", File: logPath}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	t.Cleanup(func() { SetLogger(nil) })

	Store("hello from store")
	Sync()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(content), "hello from store") {
		t.Errorf("log file missing entry: %s", content)
	}
	if !strings.Contains(string(content), `"category":"store"`) {
		t.Errorf("log file missing category field: %s", content)
	}
}

func TestInitializeRejectsBadLevel(t *testing.T) {
	if err := Initialize(Config{Level: "loud"}); err == nil {
		t.Error("expected error for invalid level")
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-42")
	if got := RequestIDFromContext(ctx); got != "req-42" {
		t.Errorf("RequestIDFromContext = %q, want req-42", got)
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Errorf("empty context gave %q", got)
	}
}
