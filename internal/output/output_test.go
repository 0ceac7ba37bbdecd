package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/goodtune/screentime/internal/apps"
	"github.com/goodtune/screentime/internal/storage"
	"github.com/goodtune/screentime/internal/usage"
)

func TestFormatMillis(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0m"},
		{59_999, "0m"},
		{60_000, "1m"},
		{45 * 60_000, "45m"},
		{60 * 60_000, "1h 0m"},
		{(2*60 + 5) * 60_000, "2h 5m"},
		{-1, "0m"},
	}

	for _, tt := range tests {
		if got := FormatMillis(tt.ms); got != tt.want {
			t.Errorf("FormatMillis(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}

func TestToday(t *testing.T) {
	var buf bytes.Buffer
	result := &usage.DailyResult{Date: "2024-06-01", TotalMillis: 90 * 60_000}
	rows := []apps.Row{
		{Key: "com.a", Label: "Alpha", UsageMillis: 90 * 60_000},
		{Key: "com.b", Label: "Beta", Excluded: true, UsageMillis: 60_000},
	}

	if err := Today(&buf, result, rows); err != nil {
		t.Fatalf("Today failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"2024-06-01", "1h 30m", "Alpha", "com.b", "yes"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestTodayEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := Today(&buf, &usage.DailyResult{Date: "2024-06-01"}, nil); err != nil {
		t.Fatalf("Today failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No foreground usage") {
		t.Fatalf("expected empty message, got:\n%s", buf.String())
	}
}

func TestHistory(t *testing.T) {
	var buf bytes.Buffer
	err := History(&buf, []storage.DailyUsage{
		{Date: "2024-06-02", DurationMillis: 120_000},
		{Date: "2024-06-01", DurationMillis: 3_600_000},
	})
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}

	out := buf.String()
	if strings.Index(out, "2024-06-02") > strings.Index(out, "2024-06-01") {
		t.Fatalf("expected newest first:\n%s", out)
	}
	if !strings.Contains(out, "1h 0m") || !strings.Contains(out, "2m") {
		t.Fatalf("expected formatted durations:\n%s", out)
	}
}
