// Package report renders debugging charts for recorded sessions using
// go-echarts. These are diagnostic pages, not the product UI.
package report

import (
	"bytes"
	"fmt"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/attentive-data/focus.report/internal/session"
)

// RenderSessionChart renders an HTML page with the session's per-tick
// confidence timeline as a line chart. The focused state rides along as
// a second series so dropouts are visible against the confidence curve.
func RenderSessionChart(s *session.FocusSession) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("no session to render")
	}
	if len(s.Timeline) == 0 {
		return nil, fmt.Errorf("session %s has no timeline samples", s.ID)
	}

	x := make([]string, 0, len(s.Timeline))
	confidence := make([]opts.LineData, 0, len(s.Timeline))
	focused := make([]opts.LineData, 0, len(s.Timeline))
	for _, sample := range s.Timeline {
		x = append(x, fmt.Sprintf("%ds", sample.OffsetSeconds))
		confidence = append(confidence, opts.LineData{Value: sample.Confidence})
		v := 0
		if sample.Focused {
			v = 100
		}
		focused = append(focused, opts.LineData{Value: v})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Focus Session", Theme: "dark", Width: "1200px", Height: "600px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Focus Session Timeline",
			Subtitle: fmt.Sprintf("session=%s focus=%.1f%% samples=%d", s.ID, s.FocusPercent, len(s.Timeline)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Elapsed"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Confidence", Min: 0, Max: 100}),
	)

	line.SetXAxis(x)
	line.AddSeries("confidence", confidence,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	line.AddSeries("focused", focused,
		charts.WithLineChartOpts(opts.LineChart{Step: "end"}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	return buf.Bytes(), nil
}
