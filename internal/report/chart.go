package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/seenimoa/newsentiment/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// SVG charts for the run report
// ════════════════════════════════════════════════════════════════════

// ChartConfig holds rendering parameters for SVG charts.
type ChartConfig struct {
	Width        int    // SVG width in pixels (default: 800)
	Height       int    // SVG height in pixels (default: 400)
	MarginTop    int    // top margin (default: 40)
	MarginRight  int    // right margin (default: 60)
	MarginBottom int    // bottom margin (default: 50)
	MarginLeft   int    // left margin (default: 70)
	BgColor      string // background color (default: "#ffffff")
	GridColor    string // grid line color (default: "#e8e8e8")
	TextColor    string // axis label color (default: "#333333")
	FontSize     int    // axis label font size (default: 11)
	Title        string // chart title
}

// DefaultChartConfig returns sensible defaults for chart rendering.
func DefaultChartConfig() ChartConfig {
	return ChartConfig{
		Width:        800,
		Height:       400,
		MarginTop:    40,
		MarginRight:  60,
		MarginBottom: 50,
		MarginLeft:   70,
		BgColor:      "#ffffff",
		GridColor:    "#e8e8e8",
		TextColor:    "#333333",
		FontSize:     11,
	}
}

// plotArea returns the usable drawing area dimensions.
func (c ChartConfig) plotArea() (x, y, w, h int) {
	return c.MarginLeft, c.MarginTop,
		c.Width - c.MarginLeft - c.MarginRight,
		c.Height - c.MarginTop - c.MarginBottom
}

// withTitle fills defaults into a zero config and sets the title.
func (c ChartConfig) withTitle(title string) ChartConfig {
	if c.Width == 0 {
		c = DefaultChartConfig()
	}
	if c.Title == "" {
		c.Title = title
	}
	return c
}

// ════════════════════════════════════════════════════════════════════
// Line Chart
// ════════════════════════════════════════════════════════════════════

// LineChartSeries represents a named data series for line charts.
// NaN values leave a gap.
type LineChartSeries struct {
	Name   string
	Values []float64
	Color  string // hex color (optional, auto-assigned if empty)
}

// LineChart generates an SVG line chart with one or more series.
// Labels are optional X-axis labels corresponding to data points.
// A dashed zero line is drawn when the range crosses zero.
func LineChart(series []LineChartSeries, labels []string, cfg ChartConfig) string {
	if len(series) == 0 {
		return emptySVG(cfg, "No data")
	}
	cfg = cfg.withTitle("Line Chart")

	px, py, pw, ph := cfg.plotArea()

	minVal, maxVal := math.MaxFloat64, -math.MaxFloat64
	maxLen := 0
	points := 0
	for _, s := range series {
		if len(s.Values) > maxLen {
			maxLen = len(s.Values)
		}
		for _, v := range s.Values {
			if math.IsNaN(v) {
				continue
			}
			points++
			minVal = math.Min(minVal, v)
			maxVal = math.Max(maxVal, v)
		}
	}
	if points == 0 {
		return emptySVG(cfg, "No data points")
	}

	vRange := maxVal - minVal
	if vRange < 0.001 {
		vRange = 1
	}
	minVal -= vRange * 0.05
	maxVal += vRange * 0.05
	vRange = maxVal - minVal

	xAt := func(i int) float64 {
		if maxLen == 1 {
			return float64(px) + float64(pw)/2
		}
		return float64(px) + float64(i)*float64(pw)/float64(maxLen-1)
	}
	yAt := func(v float64) float64 {
		return float64(py+ph) - (v-minVal)/vRange*float64(ph)
	}

	var sb strings.Builder
	writeFrame(&sb, cfg)

	gridLines := 5
	for i := 0; i <= gridLines; i++ {
		val := minVal + vRange*float64(i)/float64(gridLines)
		y := py + ph - int(float64(ph)*float64(i)/float64(gridLines))
		fmt.Fprintf(&sb, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="%s" stroke-dasharray="3,3"/>`,
			px, y, px+pw, y, cfg.GridColor)
		fmt.Fprintf(&sb, `<text x="%d" y="%d" font-size="%d" fill="%s" text-anchor="end">%.2f</text>`,
			px-5, y+4, cfg.FontSize, cfg.TextColor, val)
	}

	if minVal < 0 && maxVal > 0 {
		zy := yAt(0)
		fmt.Fprintf(&sb, `<line x1="%d" y1="%.1f" x2="%d" y2="%.1f" stroke="#999" stroke-width="1" stroke-dasharray="4,4"/>`,
			px, zy, px+pw, zy)
	}

	defaultColors := []string{"#2196f3", "#ff9800", "#4caf50", "#e91e63", "#9c27b0", "#00bcd4"}
	for si, s := range series {
		color := s.Color
		if color == "" {
			color = defaultColors[si%len(defaultColors)]
		}

		var pathParts []string
		for i, v := range s.Values {
			if math.IsNaN(v) {
				continue
			}
			cx, cy := xAt(i), yAt(v)
			cmd := "L"
			if len(pathParts) == 0 {
				cmd = "M"
			}
			pathParts = append(pathParts, fmt.Sprintf("%s%.1f,%.1f", cmd, cx, cy))
			fmt.Fprintf(&sb, `<circle cx="%.1f" cy="%.1f" r="3" fill="%s"/>`, cx, cy, color)
		}
		if len(pathParts) > 1 {
			fmt.Fprintf(&sb, `<path d="%s" fill="none" stroke="%s" stroke-width="2"/>`,
				strings.Join(pathParts, " "), color)
		}

		// Legend
		ly := py + 10 + si*16
		fmt.Fprintf(&sb, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="%s" stroke-width="2"/>`,
			px+10, ly, px+30, ly, color)
		fmt.Fprintf(&sb, `<text x="%d" y="%d" font-size="10" fill="%s">%s</text>`,
			px+35, ly+4, cfg.TextColor, escapeXML(s.Name))
	}

	if len(labels) > 0 {
		interval := maxLen / 6
		if interval < 1 {
			interval = 1
		}
		for i := 0; i < len(labels) && i < maxLen; i += interval {
			cx := xAt(i)
			fmt.Fprintf(&sb, `<text x="%.1f" y="%d" font-size="%d" fill="%s" text-anchor="middle" transform="rotate(-30,%.1f,%d)">%s</text>`,
				cx, py+ph+18, cfg.FontSize-1, cfg.TextColor, cx, py+ph+18, escapeXML(labels[i]))
		}
	}

	sb.WriteString("</svg>")
	return sb.String()
}

// ════════════════════════════════════════════════════════════════════
// Bar Chart (Horizontal)
// ════════════════════════════════════════════════════════════════════

// BarItem represents a single bar in a horizontal bar chart.
type BarItem struct {
	Label string
	Value float64
	Color string // optional; green for >= 0, red otherwise
}

// HorizontalBarChart generates an SVG horizontal bar chart. The height
// grows with the number of bars so large rosters stay legible.
func HorizontalBarChart(items []BarItem, valueFormat string, cfg ChartConfig) string {
	if len(items) == 0 {
		return emptySVG(cfg, "No data")
	}
	cfg = cfg.withTitle("Comparison")
	cfg.MarginLeft = 120 // wider for labels
	if need := cfg.MarginTop + cfg.MarginBottom + 18*len(items); need > cfg.Height {
		cfg.Height = need
	}
	if valueFormat == "" {
		valueFormat = "%.2f"
	}

	px, py, pw, ph := cfg.plotArea()

	maxVal, minVal := 0.0, 0.0
	for _, item := range items {
		maxVal = math.Max(maxVal, item.Value)
		minVal = math.Min(minVal, item.Value)
	}

	hasNegative := minVal < 0
	valRange := maxVal - minVal
	if valRange < 0.001 {
		valRange = 1
	}

	barH := float64(ph) / float64(len(items)) * 0.7
	if barH > 30 {
		barH = 30
	}
	gap := (float64(ph) - barH*float64(len(items))) / float64(len(items)+1)

	var sb strings.Builder
	writeFrame(&sb, cfg)

	zeroX := float64(px)
	if hasNegative {
		zeroX = float64(px) + (-minVal/valRange)*float64(pw)
		fmt.Fprintf(&sb, `<line x1="%.1f" y1="%d" x2="%.1f" y2="%d" stroke="#999" stroke-width="1"/>`,
			zeroX, py, zeroX, py+ph)
	}

	for i, item := range items {
		by := float64(py) + gap + float64(i)*(barH+gap)
		color := item.Color
		if color == "" {
			color = "#4caf50"
			if item.Value < 0 {
				color = "#ef5350"
			}
		}

		bw := math.Abs(item.Value) / valRange * float64(pw)
		bx := zeroX
		if item.Value < 0 {
			bx = zeroX - bw
		}
		fmt.Fprintf(&sb, `<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s" rx="2"/>`,
			bx, by, bw, barH, color)

		fmt.Fprintf(&sb, `<text x="%d" y="%.1f" font-size="%d" fill="%s" text-anchor="end">%s</text>`,
			px-5, by+barH/2+4, cfg.FontSize, cfg.TextColor, escapeXML(item.Label))

		vx, anchor := bx+bw+5, "start"
		if item.Value < 0 {
			vx, anchor = bx-5, "end"
		}
		fmt.Fprintf(&sb, `<text x="%.1f" y="%.1f" font-size="%d" fill="%s" text-anchor="%s">%s</text>`,
			vx, by+barH/2+4, cfg.FontSize, cfg.TextColor, anchor, fmt.Sprintf(valueFormat, item.Value))
	}

	sb.WriteString("</svg>")
	return sb.String()
}

// ════════════════════════════════════════════════════════════════════
// Heatmap (company × date)
// ════════════════════════════════════════════════════════════════════

// Heatmap generates an SVG grid with one row per label and one column per
// column label. Cells hold values in [-1, 1]; NaN cells are drawn grey.
func Heatmap(rows, cols []string, cells [][]float64, cfg ChartConfig) string {
	if len(rows) == 0 || len(cols) == 0 {
		return emptySVG(cfg, "No data")
	}
	cfg = cfg.withTitle("Heatmap")
	cfg.MarginLeft = 80
	cfg.MarginBottom = 80
	cfg.MarginRight = 90 // legend

	cellW := 24.0
	cellH := 16.0
	if w := cfg.MarginLeft + cfg.MarginRight + int(cellW)*len(cols); w > cfg.Width {
		cfg.Width = w
	}
	if h := cfg.MarginTop + cfg.MarginBottom + int(cellH)*len(rows); h > cfg.Height {
		cfg.Height = h
	}
	px, py, pw, ph := cfg.plotArea()
	cellW = float64(pw) / float64(len(cols))
	cellH = float64(ph) / float64(len(rows))

	var sb strings.Builder
	writeFrame(&sb, cfg)

	for r, label := range rows {
		y := float64(py) + float64(r)*cellH
		for c := range cols {
			v := math.NaN()
			if r < len(cells) && c < len(cells[r]) {
				v = cells[r][c]
			}
			fmt.Fprintf(&sb, `<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="%s" stroke="#ffffff" stroke-width="0.5"/>`,
				float64(px)+float64(c)*cellW, y, cellW, cellH, divergingColor(v))
		}
		fmt.Fprintf(&sb, `<text x="%d" y="%.1f" font-size="%d" fill="%s" text-anchor="end">%s</text>`,
			px-5, y+cellH/2+4, cfg.FontSize-1, cfg.TextColor, escapeXML(label))
	}

	interval := len(cols) / 15
	if interval < 1 {
		interval = 1
	}
	for c := 0; c < len(cols); c += interval {
		cx := float64(px) + float64(c)*cellW + cellW/2
		fmt.Fprintf(&sb, `<text x="%.1f" y="%d" font-size="%d" fill="%s" text-anchor="end" transform="rotate(-45,%.1f,%d)">%s</text>`,
			cx, py+ph+12, cfg.FontSize-1, cfg.TextColor, cx, py+ph+12, escapeXML(cols[c]))
	}

	// Legend: -1 at the bottom, +1 at the top.
	lx := px + pw + 20
	steps := 10
	stepH := float64(ph) / float64(steps)
	for i := 0; i < steps; i++ {
		v := 1 - 2*(float64(i)+0.5)/float64(steps)
		fmt.Fprintf(&sb, `<rect x="%d" y="%.1f" width="14" height="%.1f" fill="%s"/>`,
			lx, float64(py)+float64(i)*stepH, stepH, divergingColor(v))
	}
	for _, tick := range []struct {
		v float64
		y float64
	}{{1, float64(py)}, {0, float64(py) + float64(ph)/2}, {-1, float64(py + ph)}} {
		fmt.Fprintf(&sb, `<text x="%d" y="%.1f" font-size="%d" fill="%s">%+.0f</text>`,
			lx+18, tick.y+4, cfg.FontSize-1, cfg.TextColor, tick.v)
	}

	sb.WriteString("</svg>")
	return sb.String()
}

// divergingColor maps [-1, 1] onto red, white, green.
func divergingColor(v float64) string {
	if math.IsNaN(v) {
		return "#eeeeee"
	}
	v = math.Max(-1, math.Min(1, v))
	lerp := func(a, b int, t float64) int { return a + int(math.Round(float64(b-a)*t)) }
	if v < 0 {
		t := -v
		return fmt.Sprintf("#%02x%02x%02x", lerp(255, 0xd7, t), lerp(255, 0x30, t), lerp(255, 0x27, t))
	}
	return fmt.Sprintf("#%02x%02x%02x", lerp(255, 0x1a, v), lerp(255, 0x98, v), lerp(255, 0x50, v))
}

// ════════════════════════════════════════════════════════════════════
// Sentiment charts
// ════════════════════════════════════════════════════════════════════

// DailyAverageChart plots the mean of the scored company-days per date.
func DailyAverageChart(days []models.CompanyDaySummary) string {
	dates := sortedDates(days)
	sums := make(map[string]float64, len(dates))
	counts := make(map[string]int, len(dates))
	for _, d := range days {
		if d.AverageSentiment == nil {
			continue
		}
		sums[d.Date] += *d.AverageSentiment
		counts[d.Date]++
	}
	values := make([]float64, len(dates))
	for i, date := range dates {
		if counts[date] == 0 {
			values[i] = math.NaN()
			continue
		}
		values[i] = sums[date] / float64(counts[date])
	}
	cfg := DefaultChartConfig()
	cfg.Title = "Average Daily Sentiment"
	return LineChart([]LineChartSeries{{Name: "all companies", Values: values, Color: "#2196f3"}}, dates, cfg)
}

// CompanyAverageChart draws one bar per company that has an average.
func CompanyAverageChart(companies []models.CompanySummary) string {
	var items []BarItem
	for _, c := range companies {
		if c.AverageSentiment == nil {
			continue
		}
		items = append(items, BarItem{Label: c.CompanyID, Value: *c.AverageSentiment})
	}
	cfg := DefaultChartConfig()
	cfg.Title = "Average Sentiment by Company"
	return HorizontalBarChart(items, "%+.2f", cfg)
}

// CoverageChart draws the number of scored articles per company.
func CoverageChart(companies []models.CompanySummary) string {
	items := make([]BarItem, 0, len(companies))
	for _, c := range companies {
		items = append(items, BarItem{Label: c.CompanyID, Value: float64(c.TotalNewsCount), Color: "#2196f3"})
	}
	cfg := DefaultChartConfig()
	cfg.Title = "News Coverage by Company"
	return HorizontalBarChart(items, "%.0f", cfg)
}

// HeatmapChart lays out company × date averages in roster order.
func HeatmapChart(days []models.CompanyDaySummary, companies []models.CompanySummary) string {
	dates := sortedDates(days)
	col := make(map[string]int, len(dates))
	for i, d := range dates {
		col[d] = i
	}
	rows := make([]string, 0, len(companies))
	row := make(map[string]int, len(companies))
	for _, c := range companies {
		row[c.CompanyID] = len(rows)
		rows = append(rows, c.CompanyID)
	}
	cells := make([][]float64, len(rows))
	for r := range cells {
		cells[r] = make([]float64, len(dates))
		for c := range cells[r] {
			cells[r][c] = math.NaN()
		}
	}
	for _, d := range days {
		r, ok := row[d.CompanyID]
		if !ok || d.AverageSentiment == nil {
			continue
		}
		cells[r][col[d.Date]] = *d.AverageSentiment
	}
	cfg := DefaultChartConfig()
	cfg.Title = "Sentiment Heatmap"
	return Heatmap(rows, dates, cells, cfg)
}

// ════════════════════════════════════════════════════════════════════
// SVG Helpers
// ════════════════════════════════════════════════════════════════════

func writeFrame(sb *strings.Builder, cfg ChartConfig) {
	sb.WriteString(svgHeader(cfg))
	fmt.Fprintf(sb, `<rect x="0" y="0" width="%d" height="%d" fill="%s"/>`,
		cfg.Width, cfg.Height, cfg.BgColor)
	fmt.Fprintf(sb, `<text x="%d" y="20" font-size="14" font-weight="bold" fill="%s" text-anchor="middle">%s</text>`,
		cfg.Width/2, cfg.TextColor, escapeXML(cfg.Title))
}

func svgHeader(cfg ChartConfig) string {
	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" font-family="sans-serif">`,
		cfg.Width, cfg.Height, cfg.Width, cfg.Height)
}

func emptySVG(cfg ChartConfig, msg string) string {
	if cfg.Width == 0 {
		cfg.Width = 400
	}
	if cfg.Height == 0 {
		cfg.Height = 200
	}
	return fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d"><rect width="%d" height="%d" fill="#f5f5f5"/><text x="%d" y="%d" text-anchor="middle" fill="#999" font-size="14">%s</text></svg>`,
		cfg.Width, cfg.Height, cfg.Width, cfg.Height, cfg.Width/2, cfg.Height/2, escapeXML(msg))
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, `"`, "&quot;")
	return s
}
