package watercolumn

import (
	"fmt"
	"strconv"
	"strings"
)

// RecordTag starts every averaged water column record.
const RecordTag = "$RTIAWC"

// FormatRecord renders the smoothed average as a single line:
//
//	$RTIAWC,<ensemble>,<avgVel>,<avgDir>,<maxVel>,<minBin>,<maxBin>,<count>\n
func FormatRecord(ensembleNumber int, avg Average, sampleCount int) string {
	var b strings.Builder
	b.WriteString(RecordTag)
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(ensembleNumber))
	for _, v := range []float64{avg.AvgVel, avg.AvgDir, avg.MaxVel} {
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	}
	for _, v := range []int{avg.MinBin, avg.MaxBin, sampleCount} {
		b.WriteByte(',')
		b.WriteString(strconv.Itoa(v))
	}
	b.WriteByte('\n')
	return b.String()
}

// Record is a parsed $RTIAWC line.
type Record struct {
	EnsembleNumber int
	Average        Average
	SampleCount    int
}

// ParseRecord parses a line produced by FormatRecord. Trailing whitespace is
// ignored.
func ParseRecord(line string) (Record, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != 8 {
		return Record{}, fmt.Errorf("invalid record %q: expected 8 fields, got %d", line, len(fields))
	}
	if fields[0] != RecordTag {
		return Record{}, fmt.Errorf("invalid record tag %q", fields[0])
	}

	var (
		r   Record
		err error
	)
	if r.EnsembleNumber, err = strconv.Atoi(fields[1]); err != nil {
		return Record{}, fmt.Errorf("failed to parse ensemble number: %w", err)
	}
	floatsOut := []*float64{&r.Average.AvgVel, &r.Average.AvgDir, &r.Average.MaxVel}
	for i, dst := range floatsOut {
		if *dst, err = strconv.ParseFloat(fields[2+i], 64); err != nil {
			return Record{}, fmt.Errorf("failed to parse field %d: %w", 2+i, err)
		}
	}
	intsOut := []*int{&r.Average.MinBin, &r.Average.MaxBin, &r.SampleCount}
	for i, dst := range intsOut {
		if *dst, err = strconv.Atoi(fields[5+i]); err != nil {
			return Record{}, fmt.Errorf("failed to parse field %d: %w", 5+i, err)
		}
	}
	return r, nil
}
