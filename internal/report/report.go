// Package report renders a dashboard as a terminal report.
package report

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"aircrashes/internal/models"
)

const (
	terminalWidthBackup = 80
	minBarWidth         = 10
	nameWidth           = 28
)

// Options controls rendering. A zero Width means the terminal width.
type Options struct {
	Width      int
	ForceColor bool
}

type styles struct {
	title      lipgloss.Style
	section    lipgloss.Style
	muted      lipgloss.Style
	card       lipgloss.Style
	cardTitle  lipgloss.Style
	cardValue  lipgloss.Style
	barStyle   lipgloss.Style
	trendStyle lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title:   r.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true),
		section: r.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true),
		muted:   r.NewStyle().Foreground(lipgloss.Color("#8C8C8C")),
		card: r.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A")),
		cardTitle:  r.NewStyle().Foreground(lipgloss.Color("#8C8C8C")),
		cardValue:  r.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true),
		barStyle:   r.NewStyle().Foreground(lipgloss.Color("#FF4D4F")),
		trendStyle: r.NewStyle().Foreground(lipgloss.Color("#C89A3A")),
	}
}

// Render writes d to w.
func Render(w io.Writer, d *models.Dashboard, opts Options) error {
	r := lipgloss.NewRenderer(w)
	switch {
	case !shouldUseColor(w, opts.ForceColor):
		r.SetColorProfile(termenv.Ascii)
	case opts.ForceColor:
		r.SetColorProfile(termenv.ANSI256)
	}
	st := newStyles(r)

	width := opts.Width
	if width <= 0 {
		width = terminalWidth(w)
	}

	var b strings.Builder
	b.WriteString(st.title.Render(title(d.Filter)))
	b.WriteString("\n\n")
	b.WriteString(summaryCards(st, d.Summary))
	b.WriteString("\n")

	writeSection(&b, st, "Top countries", rankingLines(d.TopCountries, width))
	writeSection(&b, st, "Top aircraft", rankingLines(d.TopAircraft, width))
	writeSection(&b, st, "Crashes per year", trendLines(st, d.CrashTrend, width))
	writeSection(&b, st, "Deadliest crashes", deadliestLines(d.Deadliest))

	_, err := io.WriteString(w, b.String())
	return err
}

func title(f models.Filter) string {
	countries := "all countries"
	if len(f.Countries) > 0 {
		countries = strings.Join(f.Countries, ", ")
	}
	return fmt.Sprintf("Air crashes %d–%d · %s", f.YearMin, f.YearMax, countries)
}

func summaryCards(st styles, m models.SummaryMetrics) string {
	card := func(label, value string) string {
		return st.card.Render(fmt.Sprintf("%s\n%s", st.cardTitle.Render(label), st.cardValue.Render(value)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		card("Crashes", strconv.Itoa(m.Count)),
		card("Fatalities", strconv.Itoa(m.TotalFatalities)),
		card("Aboard", strconv.Itoa(m.TotalAboard)),
		card("Fatalities / crash", fmt.Sprintf("%.2f", m.MeanFatalitiesPerRecord)),
	) + "\n"
}

func writeSection(b *strings.Builder, st styles, name string, lines []string) {
	b.WriteString("\n")
	b.WriteString(st.section.Render(name))
	b.WriteString("\n")
	if len(lines) == 0 {
		b.WriteString(st.muted.Render("no records"))
		b.WriteString("\n")
		return
	}
	for _, line := range lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
}

func barWidth(width, used int) int {
	if w := width - used; w > minBarWidth {
		return w
	}
	return minBarWidth
}

func rankingLines(items []models.CategoryCount, width int) []string {
	if len(items) == 0 {
		return nil
	}
	peak := items[0].Count
	countWidth := len(strconv.Itoa(peak))
	bw := barWidth(width, nameWidth+countWidth+4)

	rows := make([][]string, len(items))
	for i, it := range items {
		rows[i] = []string{truncate(it.Category, nameWidth), strconv.Itoa(it.Count), bar(it.Count, peak, bw)}
	}
	return formatTable(nil, rows, map[int]bool{1: true})
}

func trendLines(st styles, trend []models.TrendPoint, width int) []string {
	if len(trend) == 0 {
		return nil
	}
	peak := 0
	for _, p := range trend {
		if p.Observed > peak {
			peak = p.Observed
		}
	}
	bw := barWidth(width, 24)

	rows := make([][]string, len(trend))
	for i, p := range trend {
		avg := "-"
		if p.Value != nil {
			avg = fmt.Sprintf("%.2f", *p.Value)
		}
		rows[i] = []string{strconv.Itoa(p.Year), strconv.Itoa(p.Observed), avg, st.barStyle.Render(bar(p.Observed, peak, bw))}
	}
	lines := formatTable([]string{"Year", "Crashes", "Trend", ""}, rows, map[int]bool{1: true, 2: true})
	lines[0] = st.trendStyle.Render(lines[0])
	return lines
}

func deadliestLines(records []models.Record) []string {
	if len(records) == 0 {
		return nil
	}
	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = []string{
			strconv.Itoa(r.Year),
			truncate(r.Country, 20),
			truncate(r.Aircraft, 24),
			strconv.Itoa(r.Fatalities),
			strconv.Itoa(r.Aboard),
		}
	}
	return formatTable([]string{"Year", "Country", "Aircraft", "Fatalities", "Aboard"}, rows, map[int]bool{3: true, 4: true})
}

func terminalWidth(w io.Writer) int {
	file, ok := w.(*os.File)
	if !ok {
		return terminalWidthBackup
	}
	width, _, err := term.GetSize(int(file.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}

func shouldUseColor(w io.Writer, force bool) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if force {
		return true
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}
