package format

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/neexbeast/trailwx/internal/forecast"
	"github.com/neexbeast/trailwx/internal/metrics"
)

const (
	DefaultSegmentChars = 160
	DefaultMaxSegments  = 4

	divider = "--"
)

// ErrPeriodTooLong is returned when a single period cannot fit in an empty segment.
var ErrPeriodTooLong = errors.New("period does not fit in one segment")

// locator resolves the local time zone used for period labels.
type locator interface {
	Location(lat, lon float64) *time.Location
}

// Options configures a Formatter. Zero values use the defaults.
type Options struct {
	SegmentChars int
	MaxSegments  int
	Timezones    locator
	Metrics      *metrics.Collector
	Logger       *slog.Logger
}

// Formatter renders corrected forecasts into character-budgeted SMS segments.
type Formatter struct {
	chars       int
	maxSegments int
	tz          locator
	metrics     *metrics.Collector
	log         *slog.Logger
}

// PeriodRef identifies a rendered period.
type PeriodRef struct {
	Waypoint string    `json:"waypoint,omitempty"`
	Time     time.Time `json:"time"`
	Label    string    `json:"label"`
}

// Segment is one outbound message.
type Segment struct {
	Index   int         `json:"index"`
	Text    string      `json:"text"`
	Periods []PeriodRef `json:"periods"`
}

// Result is an ordered reply. Truncated counts tail source periods that did not fit.
type Result struct {
	Segments  []Segment `json:"segments"`
	Truncated int       `json:"truncated"`
}

// Texts returns the segment texts in order.
func (r *Result) Texts() []string {
	out := make([]string, len(r.Segments))
	for i, s := range r.Segments {
		out[i] = s.Text
	}
	return out
}

// Periods returns the rendered periods of all segments in order.
func (r *Result) Periods() []PeriodRef {
	var out []PeriodRef
	for _, s := range r.Segments {
		out = append(out, s.Periods...)
	}
	return out
}

// Waypoint is one block of a grouped outlook.
type Waypoint struct {
	Name      string
	Elevation float64
	Forecast  *forecast.CorrectedForecast
}

// NewFormatter creates a Formatter.
func NewFormatter(o Options) *Formatter {
	if o.SegmentChars <= 0 {
		o.SegmentChars = DefaultSegmentChars
	}
	if o.MaxSegments <= 0 {
		o.MaxSegments = DefaultMaxSegments
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return &Formatter{
		chars:       o.SegmentChars,
		maxSegments: o.MaxSegments,
		tz:          o.Timezones,
		metrics:     o.Metrics,
		log:         o.Logger.With("component", "formatter"),
	}
}

// unit is a run of lines that must stay in one segment. Headers are glued to the
// first period that follows them. refs lists every source period the lines cover.
type unit struct {
	head  []string
	lines []string
	refs  []PeriodRef
}

func (u unit) text() string {
	return strings.Join(append(append([]string(nil), u.head...), u.lines...), "\n")
}

// Format renders a single forecast.
func (f *Formatter) Format(cf *forecast.CorrectedForecast, kind QueryKind) (*Result, error) {
	if cf == nil {
		return nil, errors.New("format: nil forecast")
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("format: unknown query kind %q", kind)
	}

	header := headerLine(cf)
	periods := f.periodUnits(cf, kind, "")
	if len(periods) == 0 {
		return f.pack([]unit{{head: []string{header}, lines: []string{"no data"}}}, kind)
	}
	periods[0].head = []string{header}
	return f.pack(periods, kind)
}

// FormatGrouped renders several waypoints as separate blocks.
// Waypoints without a forecast or without periods are left out.
func (f *Formatter) FormatGrouped(blocks []Waypoint, kind QueryKind) (*Result, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("format: unknown query kind %q", kind)
	}

	var units []unit
	for _, wp := range blocks {
		if wp.Forecast == nil || len(wp.Forecast.Periods) == 0 {
			continue
		}
		periods := f.periodUnits(wp.Forecast, kind, wp.Name)
		if len(periods) == 0 {
			continue
		}
		// The header shares a unit with the first period, so long names are cut to fit.
		room := f.budget() - runeLen(periods[0].text()) - 1
		var lead []string
		if len(units) > 0 {
			lead = append(lead, divider)
			room -= runeLen(divider) + 1
		}
		periods[0].head = append(lead, blockHeader(wp, room))
		units = append(units, periods...)
	}

	if len(units) == 0 {
		return &Result{}, nil
	}
	return f.pack(units, kind)
}

// periodUnits renders the periods within the kind's horizon, one line per block of
// step periods. Every period in a block is represented by the line.
func (f *Formatter) periodUnits(cf *forecast.CorrectedForecast, kind QueryKind, waypoint string) []unit {
	spec := kindSpecs[kind]
	limit := spec.horizon.Hours
	if spec.horizon.Granularity == forecast.Daily {
		limit = spec.horizon.Days
	}

	loc := time.UTC
	if f.tz != nil {
		loc = f.tz.Location(cf.Lat, cf.Lon)
	}

	src := cf.Periods
	if len(src) > limit {
		src = src[:limit]
	}

	step := max(spec.step, 1)
	var units []unit
	for i := 0; i < len(src); i += step {
		block := src[i:min(i+step, len(src))]
		refs := make([]PeriodRef, len(block))
		for j, p := range block {
			refs[j] = PeriodRef{Waypoint: waypoint, Time: p.Time, Label: periodLabel(p.Time, cf.Granularity, loc)}
		}
		units = append(units, unit{
			lines: []string{periodLine(refs[0].Label, aggregate(block))},
			refs:  refs,
		})
	}
	return units
}

// budget is the room left in a segment after the widest "k/n " prefix.
func (f *Formatter) budget() int {
	return f.chars - runeLen(prefix(f.maxSegments, f.maxSegments))
}

// pack lays units out greedily and drops tail periods until the reply fits in maxSegments.
// The first unit's header survives even when every period is dropped.
func (f *Formatter) pack(units []unit, kind QueryKind) (*Result, error) {
	budget := f.budget()
	for _, u := range units {
		if runeLen(u.text()) > budget {
			return nil, fmt.Errorf("%w: %d chars, budget %d", ErrPeriodTooLong, runeLen(u.text()), budget)
		}
	}

	for keep := len(units); keep >= 0; keep-- {
		candidate := append([]unit(nil), units[:keep]...)
		if keep == 0 && len(units[0].head) > 0 {
			candidate = append(candidate, unit{head: units[0].head})
		}
		dropped := 0
		for _, u := range units[keep:] {
			dropped += len(u.refs)
		}
		if dropped > 0 {
			candidate = append(candidate, unit{lines: []string{fmt.Sprintf("+%d more", dropped)}})
		}

		if runeLen(joinUnits(candidate)) <= f.chars {
			return f.result(kind, [][]unit{candidate}, dropped), nil
		}

		segments := layout(candidate, budget)
		if len(segments) <= f.maxSegments {
			return f.result(kind, segments, dropped), nil
		}
	}

	return nil, fmt.Errorf("format: %d units do not fit in %d segments", len(units), f.maxSegments)
}

func (f *Formatter) result(kind QueryKind, segments [][]unit, dropped int) *Result {
	res := &Result{Truncated: dropped}
	n := len(segments)
	for i, seg := range segments {
		text := joinUnits(seg)
		if n > 1 {
			text = prefix(i+1, n) + text
		}
		s := Segment{Index: i + 1, Text: text, Periods: []PeriodRef{}}
		for _, u := range seg {
			s.Periods = append(s.Periods, u.refs...)
		}
		res.Segments = append(res.Segments, s)
	}

	if dropped > 0 {
		f.log.Info("reply truncated", "kind", string(kind), "dropped", dropped, "segments", n)
	}
	f.metrics.RecordFormat(string(kind), n, dropped > 0)
	return res
}

// layout packs units greedily into segments of at most budget runes.
func layout(units []unit, budget int) [][]unit {
	var segments [][]unit
	var cur []unit
	curLen := 0
	for _, u := range units {
		need := runeLen(u.text())
		if len(cur) > 0 {
			need++
		}
		if len(cur) > 0 && curLen+need > budget {
			segments = append(segments, cur)
			cur, curLen = nil, 0
			need = runeLen(u.text())
		}
		cur = append(cur, u)
		curLen += need
	}
	if len(cur) > 0 {
		segments = append(segments, cur)
	}
	return segments
}

func joinUnits(units []unit) string {
	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = u.text()
	}
	return strings.Join(texts, "\n")
}

func prefix(k, n int) string {
	return fmt.Sprintf("%d/%d ", k, n)
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func headerLine(cf *forecast.CorrectedForecast) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%.2f,%.2f %dm", cf.Lat, cf.Lon, round(cf.TargetElevation))
	if cf.IsFallback {
		b.WriteString(" FB")
	}
	if !cf.ElevationCorrected {
		b.WriteString(" ~")
	}
	if len(cf.Alerts) > 0 {
		fmt.Fprintf(&b, " A%d", len(cf.Alerts))
	}
	if rp := cf.RecentPrecip; rp != nil {
		if rp.Rain24h > 0 {
			fmt.Fprintf(&b, " R24:%smm", decimal(rp.Rain24h))
		}
		if rp.Snow24h > 0 {
			fmt.Fprintf(&b, " S24:%scm", decimal(rp.Snow24h))
		}
	}
	return b.String()
}

// blockHeader renders "[Name 1850m FB ~ A2]", cutting the name so the header
// is at most room runes.
func blockHeader(wp Waypoint, room int) string {
	var b strings.Builder
	fmt.Fprintf(&b, " %dm", round(wp.Elevation))
	if wp.Forecast.IsFallback {
		b.WriteString(" FB")
	}
	if !wp.Forecast.ElevationCorrected {
		b.WriteString(" ~")
	}
	if len(wp.Forecast.Alerts) > 0 {
		fmt.Fprintf(&b, " A%d", len(wp.Forecast.Alerts))
	}
	b.WriteString("]")
	tail := b.String()

	name := []rune(strings.TrimSpace(wp.Name))
	if over := 1 + len(name) + runeLen(tail) - room; over > 0 {
		name = []rune(strings.TrimSpace(string(name[:max(len(name)-over, 0)])))
	}
	return "[" + string(name) + tail
}

func periodLabel(t time.Time, g forecast.Granularity, loc *time.Location) string {
	local := t.In(loc)
	if g == forecast.Daily {
		return local.Weekday().String()[:2]
	}
	return fmt.Sprintf("%dh", local.Hour())
}

func periodLine(label string, p forecast.CorrectedPeriod) string {
	parts := []string{
		label,
		fmt.Sprintf("%d/%dC", round(p.TempMin), round(p.TempMax)),
		fmt.Sprintf("%d%%", round(p.PrecipProbability)),
	}
	if p.HasPrecipAmount {
		parts = append(parts, fmt.Sprintf("%s-%smm", decimal(p.Precip.Min), decimal(p.Precip.Max)))
	}
	if p.Snow.Max > 0 {
		parts = append(parts, fmt.Sprintf("*%scm", decimal(p.Snow.Max)))
	}
	parts = append(parts, fmt.Sprintf("%s%d-%d", p.WindDir, round(p.WindAvg), round(p.WindGust)))
	if p.FreezingLevel != nil {
		parts = append(parts, fmt.Sprintf("FL%d", round(*p.FreezingLevel)))
	}
	if p.CloudBase != nil {
		parts = append(parts, fmt.Sprintf("CB%d", round(*p.CloudBase)))
	}
	if p.Danger.Level > 0 {
		tags := make([]string, len(p.Danger.Reasons))
		for i, r := range p.Danger.Reasons {
			tags[i] = string(r)
		}
		parts = append(parts, strings.Repeat("!", p.Danger.Level)+strings.Join(tags, ","))
	}
	return strings.Join(parts, " ")
}

func round(v float64) int {
	return int(math.Round(v))
}

// decimal renders v with at most one decimal and no trailing zero.
func decimal(v float64) string {
	r := math.Round(v*10) / 10
	if r == 0 {
		r = 0 // drop negative zero
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// Legend documents the abbreviations used by every query kind.
func Legend() string {
	return strings.Join([]string{
		"Header: lat,lon elev m. FB=backup source ~=not elev-adjusted An=n alerts R24/S24=rain mm/snow cm last 24h",
		"Line: time min/maxC rain% mm-range *snow cm dir avg-gust km/h FL=freezing lvl m CB=cloud base m above ground",
		"14h=hour Mo-Su=day. ! per danger: WIND ICE WHITEOUT PRECIP STORM. +N more=N hours or days cut off",
	}, "\n")
}
