// Package report persists attention-analysis scalars: three line-prefixed
// sections, each holding the per-example values of one series in original
// example order.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"github.com/docattn/go-docattn/attention"
)

// Section prefixes. The scalar list follows each prefix on its own line.
const (
	sectionSelfStd  = "encoder self attn std dev:"
	sectionSelfDoc  = "encoder self doc attn avg:"
	sectionCrossStd = "decoder cross attn std dev:"
)

// Analysis accumulates the per-example scalar series of one analysis run.
// Indexes within each series follow original example order; an example skipped
// for undefined dispersion simply contributes no entry.
type Analysis struct {
	SelfStdDev  []float64
	SelfDocAvg  []float64
	CrossStdDev []float64
}

// Add appends one example's record to the series selected by opts.
func (a *Analysis) Add(rec attention.Record, opts attention.Options) {
	if opts.ComputeSelf {
		a.SelfStdDev = append(a.SelfStdDev, rec.SelfDispersion)
		a.SelfDocAvg = append(a.SelfDocAvg, rec.SelfDocAttention)
	}
	if opts.ComputeCross {
		a.CrossStdDev = append(a.CrossStdDev, rec.CrossDispersion)
	}
}

// Format renders the three sections as text.
func (a *Analysis) Format() string {
	var sb strings.Builder
	sb.WriteString(sectionSelfStd + "\n" + formatList(a.SelfStdDev) + "\n")
	sb.WriteString(sectionSelfDoc + "\n" + formatList(a.SelfDocAvg) + "\n")
	sb.WriteString(sectionCrossStd + "\n" + formatList(a.CrossStdDev) + "\n")
	return sb.String()
}

// Write persists the analysis to path, holding an advisory lock alongside the
// destination so concurrent runs cannot interleave their sections.
func (a *Analysis) Write(path string) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return errors.Wrapf(err, "failed to lock analysis report %s", path)
	}
	defer lock.Unlock()

	if err := os.WriteFile(path, []byte(a.Format()), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write analysis report %s", path)
	}
	return nil
}

// ReadFile parses an analysis report from disk.
func ReadFile(path string) (*Analysis, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open analysis report %s", path)
	}
	defer f.Close()
	return Parse(f)
}

// Parse recovers the three scalar series from report text.
func Parse(r io.Reader) (*Analysis, error) {
	a := &Analysis{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var target *[]float64
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case sectionSelfStd:
			target = &a.SelfStdDev
			continue
		case sectionSelfDoc:
			target = &a.SelfDocAvg
			continue
		case sectionCrossStd:
			target = &a.CrossStdDev
			continue
		}
		if line == "" {
			continue
		}
		if target == nil {
			return nil, errors.Errorf("unexpected line outside any section: %q", line)
		}
		values, err := parseList(line)
		if err != nil {
			return nil, err
		}
		*target = values
		target = nil
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read analysis report")
	}
	return a, nil
}

func formatList(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func parseList(line string) ([]float64, error) {
	if !strings.HasPrefix(line, "[") || !strings.HasSuffix(line, "]") {
		return nil, errors.Errorf("malformed scalar list: %q", line)
	}
	inner := strings.TrimSpace(line[1 : len(line)-1])
	if inner == "" {
		return []float64{}, nil
	}
	parts := strings.Split(inner, ",")
	values := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "malformed scalar %q in list", p)
		}
		values[i] = v
	}
	return values, nil
}

// String implements fmt.Stringer for debug printing.
func (a *Analysis) String() string {
	return fmt.Sprintf("analysis{self_std: %d, self_doc: %d, cross_std: %d}",
		len(a.SelfStdDev), len(a.SelfDocAvg), len(a.CrossStdDev))
}
