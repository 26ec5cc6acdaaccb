package smartermodel

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(core))

	logger.Debug("debug message", "model", "users")
	logger.Info("info message", "id", "u1")
	logger.Warn("warn message", "backend", "redis")
	logger.Error("error message", "error", ErrTimeout)

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	wantLevels := []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel}
	for i, entry := range entries {
		if entry.Level != wantLevels[i] {
			t.Errorf("entry %d level = %v, want %v", i, entry.Level, wantLevels[i])
		}
	}
	if got := entries[0].ContextMap()["model"]; got != "users" {
		t.Errorf("model field = %v, want users", got)
	}
}

func TestZapLoggerFromSugar(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := NewZapLoggerFromSugar(zap.New(core).Sugar())

	logger.Debug("filtered")
	logger.Info("kept")
	if logs.Len() != 1 {
		t.Errorf("expected 1 entry at info level, got %d", logs.Len())
	}
}

func TestZapLoggerThroughRepository(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	primary := newFakeBackend("primary", nil)
	primary.saveErr = ErrBackendUnavailable

	store := newTestStore(t, primary)
	store.SetLogger(NewZapLogger(zap.New(core)))
	repo := newUserRepo(t, store, userDescriptor("primary"))

	if err := repo.Save(context.Background(), &testUser{}); err == nil {
		t.Fatal("expected save to fail")
	}

	failures := logs.FilterMessage("save failed").All()
	if len(failures) != 1 {
		t.Fatalf("expected one save failure entry, got %d", len(failures))
	}
	fields := failures[0].ContextMap()
	if fields["model"] != "users" || fields["backend"] != "primary" {
		t.Errorf("unexpected fields: %v", fields)
	}
}

func TestProductionAndDevelopmentLoggers(t *testing.T) {
	prod, err := NewProductionZapLogger()
	if err != nil {
		t.Fatalf("NewProductionZapLogger failed: %v", err)
	}
	prod.Info("production", "key", "value")
	_ = prod.Sync()

	dev, err := NewDevelopmentZapLogger()
	if err != nil {
		t.Fatalf("NewDevelopmentZapLogger failed: %v", err)
	}
	dev.Debug("development", "key", "value")
	_ = dev.Sync()

	var _ Logger = prod
	var _ Logger = &NoOpLogger{}
}
