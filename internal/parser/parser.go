// Package parser turns simulation result payloads into ordered sample series.
//
// Two payload shapes are accepted:
//   - delimited text with a header row (EnergyPlus CSV output)
//   - an already structured list of samples
//
// The parser never fails. A payload it cannot make sense of yields an empty
// series, which callers treat the same as "results not ready yet".
package parser

import (
	"math"
	"strconv"
	"strings"

	"github.com/tejusbharadwaj/simdash/internal/models"
)

const (
	// DefaultTimestampColumn is the EnergyPlus timestamp header.
	DefaultTimestampColumn = "Date/Time"
	// DefaultValueColumn matches every zone air temperature column regardless of
	// the zone name and unit suffix EnergyPlus appends.
	DefaultValueColumn = "Zone Air Temperature"
	// DefaultDelimiter separates fields in tabular payloads.
	DefaultDelimiter = ","
)

// Parser extracts a (timestamp, value) series from a result payload.
type Parser struct {
	// TimestampColumn must equal a header exactly.
	TimestampColumn string
	// ValueColumn selects the first header containing it.
	ValueColumn string
	Delimiter   string
}

// New returns a parser for the given columns. Empty arguments fall back to the
// EnergyPlus defaults.
func New(timestampColumn, valueColumn string) *Parser {
	if timestampColumn == "" {
		timestampColumn = DefaultTimestampColumn
	}
	if valueColumn == "" {
		valueColumn = DefaultValueColumn
	}
	return &Parser{
		TimestampColumn: timestampColumn,
		ValueColumn:     valueColumn,
		Delimiter:       DefaultDelimiter,
	}
}

// Parse dispatches on the payload kind resolved by the transport.
func (p *Parser) Parse(raw models.RawResult) []models.Sample {
	switch raw.Kind {
	case models.KindTable:
		return p.ParseTable(raw.Text)
	case models.KindSamples:
		return p.parseSamples(raw.Samples)
	default:
		return nil
	}
}

// ParseTable reads delimited text. Rows whose value is not a finite number are
// skipped; the service may still be appending to the file.
func (p *Parser) ParseTable(text string) []models.Sample {
	lines := nonBlankLines(text)
	if len(lines) == 0 {
		return nil
	}

	headers := strings.Split(lines[0], p.delimiter())
	timeIdx, valueIdx := -1, -1
	for i, h := range headers {
		h = strings.TrimSpace(h)
		if timeIdx < 0 && h == p.TimestampColumn {
			timeIdx = i
		}
		if valueIdx < 0 && strings.Contains(h, p.ValueColumn) {
			valueIdx = i
		}
	}
	if timeIdx < 0 || valueIdx < 0 {
		return nil
	}

	samples := make([]models.Sample, 0, len(lines)-1)
	for _, line := range lines[1:] {
		cols := strings.Split(line, p.delimiter())
		if timeIdx >= len(cols) || valueIdx >= len(cols) {
			continue
		}
		value, ok := parseFinite(cols[valueIdx])
		if !ok {
			continue
		}
		samples = append(samples, models.Sample{Time: cols[timeIdx], Value: value})
	}
	return samples
}

func (p *Parser) parseSamples(in []models.Sample) []models.Sample {
	out := make([]models.Sample, 0, len(in))
	for _, s := range in {
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (p *Parser) delimiter() string {
	if p.Delimiter == "" {
		return DefaultDelimiter
	}
	return p.Delimiter
}

func nonBlankLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func parseFinite(field string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
