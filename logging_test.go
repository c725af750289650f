package main

import (
	"testing"
	"time"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    logLevel
		wantErr bool
	}{
		{"", logLevelInfo, false},
		{"DEBUG", logLevelDebug, false},
		{" warning ", logLevelWarn, false},
		{"error", logLevelError, false},
		{"trace", logLevelInfo, true},
	}
	for _, tt := range tests {
		got, err := parseLogLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Fatalf("parseLogLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestFormatLogLine(t *testing.T) {
	evt := logEvent{
		at:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		level: logLevelWarn,
		msg:   "job feed unhealthy",
		attrs: []any{"addr", "tcp://127.0.0.1:28400", "reason", "timeout", "dangling"},
	}
	want := "2024-03-01T12:00:00Z [WARN] job feed unhealthy addr=tcp://127.0.0.1:28400 reason=timeout dangling\n"
	if got := string(formatLogLine(evt)); got != want {
		t.Fatalf("formatLogLine = %q, want %q", got, want)
	}
}
