package report

import (
	"strings"
	"testing"

	"github.com/attentive-data/focus.report/internal/session"
)

func TestRenderSessionChart(t *testing.T) {
	s := &session.FocusSession{
		ID:           "abc123",
		FocusPercent: 88.5,
		Timeline: []session.TimelineSample{
			{OffsetSeconds: 1, Focused: true, Confidence: 95},
			{OffsetSeconds: 2, Focused: true, Confidence: 90},
			{OffsetSeconds: 3, Focused: false, Confidence: 30},
			{OffsetSeconds: 4, Focused: true, Confidence: 85},
		},
	}

	out, err := RenderSessionChart(s)
	if err != nil {
		t.Fatalf("RenderSessionChart failed: %v", err)
	}
	html := string(out)
	if !strings.Contains(html, "abc123") {
		t.Error("rendered chart missing session ID in subtitle")
	}
	if !strings.Contains(html, "confidence") {
		t.Error("rendered chart missing confidence series")
	}
}

func TestRenderSessionChartErrors(t *testing.T) {
	if _, err := RenderSessionChart(nil); err == nil {
		t.Error("expected error for nil session")
	}
	if _, err := RenderSessionChart(&session.FocusSession{ID: "empty"}); err == nil {
		t.Error("expected error for session without timeline")
	}
}
