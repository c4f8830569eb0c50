package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// newTestLogger returns a Logger whose entries are captured in memory.
func newTestLogger(module, level string) (*Logger, *observer.ObservedLogs) {
	var logs *observer.ObservedLogs
	l := newWithCore(module, level, func(lvl zap.AtomicLevel) zapcore.Core {
		core, observed := observer.New(lvl)
		logs = observed
		return core
	})
	return l, logs
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		input string
		want  Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"INFO", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"WARN", LevelWarn},
		{"error", LevelError},
		{"ERROR", LevelError},
		{"unknown", LevelInfo}, // default
		{"", LevelInfo},        // default
	}
	for _, c := range cases {
		got := parseLevel(c.input)
		if got != c.want {
			t.Errorf("parseLevel(%q) = %v, want %v", c.input, got, c.want)
		}
	}
}

func TestNew_ModuleUppercased(t *testing.T) {
	l, logs := newTestLogger("pipeline", "info")
	l.Info("test", "msg")
	if l.Module() != "PIPELINE" {
		t.Errorf("Module() = %q, want PIPELINE", l.Module())
	}
	entries := logs.All()
	if len(entries) != 1 || entries[0].LoggerName != "PIPELINE" {
		t.Errorf("expected one entry named PIPELINE, got %+v", entries)
	}
}

func TestLevelFiltering(t *testing.T) {
	cases := []struct {
		name  string
		level string
		emit  func(l *Logger)
		want  int
	}{
		{"debug suppressed at info", "info", func(l *Logger) { l.Debug("a", "hidden") }, 0},
		{"info passes at info", "info", func(l *Logger) { l.Info("a", "hello") }, 1},
		{"warn passes at info", "info", func(l *Logger) { l.Warn("a", "warning msg") }, 1},
		{"error passes at warn", "warn", func(l *Logger) { l.Error("a", "error msg") }, 1},
		{"info suppressed at warn", "warn", func(l *Logger) { l.Info("a", "info msg") }, 0},
		{"debug passes at debug", "debug", func(l *Logger) { l.Debug("a", "debug msg") }, 1},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			l, logs := newTestLogger("TEST", c.level)
			c.emit(l)
			if got := logs.Len(); got != c.want {
				t.Errorf("got %d entries, want %d", got, c.want)
			}
		})
	}
}

func TestSetLevel_ChangesFilter(t *testing.T) {
	l, logs := newTestLogger("TEST", "error")

	l.Info("action", "should be hidden")
	if logs.Len() > 0 {
		t.Errorf("info suppressed at error level, got: %v", logs.All())
	}

	l.SetLevel("debug")
	l.Info("action", "should appear now")
	if logs.FilterMessage("should appear now").Len() != 1 {
		t.Errorf("info should appear after SetLevel(debug), got: %v", logs.All())
	}
}

func TestFormattedMethods(t *testing.T) {
	cases := []struct {
		name  string
		fn    func(l *Logger)
		level zapcore.Level
	}{
		{"Debugf", func(l *Logger) { l.Debugf("a", "val=%d", 42) }, zapcore.DebugLevel},
		{"Infof", func(l *Logger) { l.Infof("a", "val=%d", 42) }, zapcore.InfoLevel},
		{"Warnf", func(l *Logger) { l.Warnf("a", "val=%d", 42) }, zapcore.WarnLevel},
		{"Errorf", func(l *Logger) { l.Errorf("a", "val=%d", 42) }, zapcore.ErrorLevel},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			l, logs := newTestLogger("TEST", "debug")
			c.fn(l)
			entries := logs.FilterMessage("val=42").All()
			if len(entries) != 1 || entries[0].Level != c.level {
				t.Errorf("%s: expected one val=42 entry at %v, got %v", c.name, c.level, logs.All())
			}
		})
	}
}

func TestActionField(t *testing.T) {
	l, logs := newTestLogger("MYMOD", "debug")
	l.Info("my_action", "the message")

	entries := logs.FilterField(zap.String("action", "my_action")).All()
	if len(entries) != 1 || entries[0].Message != "the message" {
		t.Errorf("expected action field on entry, got %v", logs.All())
	}
}

func TestWithExtraFields(t *testing.T) {
	l, logs := newTestLogger("API", "info")
	l.With("process", "note processed", zap.Int("entities", 3))

	if logs.FilterField(zap.Int("entities", 3)).Len() != 1 {
		t.Errorf("expected entities field, got %v", logs.All())
	}
}

func TestFatalExits(t *testing.T) {
	l, logs := newTestLogger("TEST", "info")
	code := -1
	l.exit = func(c int) { code = c }

	l.Fatalf("startup", "oracle %s unavailable", "sidecar")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if logs.FilterMessage("oracle sidecar unavailable").Len() != 1 {
		t.Errorf("expected fatal message logged, got %v", logs.All())
	}
}
