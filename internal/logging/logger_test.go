package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize_SilentByDefault(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")
	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("logger should be a no-op when no level is configured")
	}
}

func TestInitialize_Levels(t *testing.T) {
	tests := []struct {
		level   string
		enabled zapcore.Level
		muted   zapcore.Level
	}{
		{"debug", zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"info", zapcore.InfoLevel, zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel, zapcore.InfoLevel},
		{"error", zapcore.ErrorLevel, zapcore.WarnLevel},
		{"bogus", zapcore.InfoLevel, zapcore.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			if err := Initialize(tt.level); err != nil {
				t.Fatalf("Initialize(%q) error = %v", tt.level, err)
			}
			core := GetLogger().Core()
			if !core.Enabled(tt.enabled) {
				t.Errorf("level %s should be enabled", tt.enabled)
			}
			if core.Enabled(tt.muted) {
				t.Errorf("level %s should be muted", tt.muted)
			}
		})
	}
	SetLogger(zap.NewNop())
}

func TestLogFrame(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	defer SetLogger(zap.NewNop())

	LogFrame("sent", []byte{'E', 'M', 'C', 0x04})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["hex"] != "454d4304" {
		t.Errorf("hex = %v, want 454d4304", fields["hex"])
	}
	if fields["direction"] != "sent" {
		t.Errorf("direction = %v, want sent", fields["direction"])
	}
}

func TestLogFrame_SkippedAboveDebug(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	SetLogger(zap.New(core))
	defer SetLogger(zap.NewNop())

	LogFrame("sent", []byte{0x01})
	if logs.Len() != 0 {
		t.Errorf("LogFrame logged %d entries at info level", logs.Len())
	}
}

func TestDumps(t *testing.T) {
	long := make([]byte, 300)
	if got := hexDump(long); !strings.HasSuffix(got, "...") || len(got) != 512+3 {
		t.Errorf("hexDump() of 300 bytes has length %d", len(got))
	}
	if got := asciiDump([]byte("EMC\x00\xff")); got != "EMC.." {
		t.Errorf("asciiDump() = %q, want %q", got, "EMC..")
	}
	if hexDump(nil) != "" || asciiDump(nil) != "" {
		t.Error("dumps of empty input should be empty")
	}
}
