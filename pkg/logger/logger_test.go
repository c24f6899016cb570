package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWrapCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := Wrap(zap.New(core)).With(zap.String("component", "sweeper"))

	log.Debug("dropped")
	log.Info("swept", zap.Int("expired", 3))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry at info and above, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["component"] != "sweeper" || fields["expired"] != int64(3) {
		t.Errorf("Unexpected fields: %v", fields)
	}
}

func TestNewZapLoggerUnknownLevelDefaultsToInfo(t *testing.T) {
	log := NewZapLogger(&ZapLoggerConfig{Level: "verbose", Encoding: "json"})
	if log == nil {
		t.Fatal("Expected a logger")
	}
	log.Debug("not written")
}
