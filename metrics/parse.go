package metrics

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Names selects the series the parser reads.
type Names struct {
	// Requests is a counter labelled status="success" or status="error".
	Requests string
	// DurationSum is the _sum series of the processing-time histogram.
	DurationSum string
}

var DefaultNames = Names{
	Requests:    "speech_requests_total",
	DurationSum: "speech_processing_duration_seconds_sum",
}

// Validate rejects names that could never match an exposition series.
func (n Names) Validate() error {
	for _, name := range []string{n.Requests, n.DurationSum} {
		if !validMetricName(name) {
			return fmt.Errorf("metrics: invalid metric name %q", name)
		}
	}
	return nil
}

const (
	statusLabel   = "status"
	statusSuccess = "success"
	statusError   = "error"
)

// Parse reads an exposition payload with DefaultNames. It never fails:
// unrecognized or malformed lines are skipped.
func Parse(text string) Summary {
	return DefaultNames.Parse(text)
}

// Decode is Parse for payloads that must look like an exposition at all.
func Decode(text string) (Summary, error) {
	return DefaultNames.Decode(text)
}

func (n Names) Parse(text string) Summary {
	s, _ := n.scan(text)
	return s
}

// Decode parses text and returns a *ParseError when not a single line of it
// is a valid sample or a HELP/TYPE comment, e.g. for an HTML error page.
func (n Names) Decode(text string) (Summary, error) {
	s, recognized := n.scan(text)
	if recognized == 0 {
		if strings.TrimSpace(text) == "" {
			return Summary{}, &ParseError{Reason: "empty payload"}
		}
		return Summary{}, &ParseError{Reason: "no exposition lines found"}
	}
	return s, nil
}

// scan returns the summary and the number of lines that were well-formed
// exposition, whether or not they matched a wanted series.
func (n Names) scan(text string) (Summary, int) {
	var (
		s           Summary
		durationSum float64
		haveSum     bool
		recognized  int
	)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line[0] == '#' {
			if isDescriptor(line) {
				recognized++
			}
			continue
		}

		smp, ok := parseSample(line)
		if !ok {
			continue
		}
		recognized++

		switch smp.name {
		case n.Requests:
			count, ok := counterValue(smp.raw, smp.value)
			if !ok {
				continue
			}
			switch smp.labels[statusLabel] {
			case statusSuccess:
				s.Requests.Success = count
			case statusError:
				s.Requests.Error = count
			}
		case n.DurationSum:
			if smp.labels[statusLabel] != statusSuccess {
				continue
			}
			if math.IsNaN(smp.value) || math.IsInf(smp.value, 0) || smp.value < 0 {
				continue
			}
			durationSum = smp.value
			haveSum = true
		}
	}

	if haveSum {
		s.AvgProcessing = averageOf(durationSum, s.Requests.Success)
	}
	return s, recognized
}

func averageOf(sum float64, success uint64) Average {
	div := float64(max(success, 1))
	return Average{Seconds: math.Round(sum/div*1000) / 1000, Known: true}
}

func isDescriptor(line string) bool {
	rest := strings.TrimSpace(line[1:])
	kw, tail, ok := strings.Cut(rest, " ")
	if !ok || (kw != "HELP" && kw != "TYPE") {
		return false
	}
	name, _, _ := strings.Cut(strings.TrimSpace(tail), " ")
	return validMetricName(name)
}

// counterValue accepts non-negative integral values such as "4" or "4.0".
// Plain integers are read exactly; other forms go through the float value.
func counterValue(raw string, v float64) (uint64, bool) {
	if n, err := strconv.ParseUint(strings.TrimPrefix(raw, "+"), 10, 64); err == nil {
		return n, true
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v != math.Trunc(v) || v >= math.MaxUint64 {
		return 0, false
	}
	return uint64(v), true
}

type sample struct {
	name   string
	labels map[string]string
	raw    string
	value  float64
}

// parseSample reads `name{label="value",...} value [timestamp]`.
func parseSample(line string) (sample, bool) {
	var smp sample

	i := 0
	for i < len(line) && isNameChar(line[i], i == 0) {
		i++
	}
	if i == 0 {
		return smp, false
	}
	smp.name = line[:i]
	rest := line[i:]

	if strings.HasPrefix(rest, "{") {
		labels, tail, ok := parseLabels(rest[1:])
		if !ok {
			return smp, false
		}
		smp.labels = labels
		rest = tail
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 || len(fields) > 2 || (rest != "" && rest[0] != ' ' && rest[0] != '\t') {
		return smp, false
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return smp, false
	}
	if len(fields) == 2 {
		if _, err := strconv.ParseInt(fields[1], 10, 64); err != nil {
			return smp, false
		}
	}
	smp.raw = fields[0]
	smp.value = v
	return smp, true
}

// parseLabels consumes a label set up to and including the closing brace.
func parseLabels(s string) (map[string]string, string, bool) {
	labels := make(map[string]string)
	i := 0
	skipSpace := func() {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
	}

	for {
		skipSpace()
		if i >= len(s) {
			return nil, "", false
		}
		if s[i] == '}' {
			return labels, s[i+1:], true
		}

		start := i
		for i < len(s) && isLabelChar(s[i], i == start) {
			i++
		}
		if i == start {
			return nil, "", false
		}
		name := s[start:i]

		skipSpace()
		if i >= len(s) || s[i] != '=' {
			return nil, "", false
		}
		i++
		skipSpace()
		if i >= len(s) || s[i] != '"' {
			return nil, "", false
		}
		i++

		var b strings.Builder
		closed := false
		for i < len(s) {
			c := s[i]
			if c == '"' {
				closed = true
				i++
				break
			}
			if c == '\\' {
				if i+1 >= len(s) {
					return nil, "", false
				}
				switch s[i+1] {
				case '\\':
					b.WriteByte('\\')
				case '"':
					b.WriteByte('"')
				case 'n':
					b.WriteByte('\n')
				default:
					return nil, "", false
				}
				i += 2
				continue
			}
			b.WriteByte(c)
			i++
		}
		if !closed {
			return nil, "", false
		}
		labels[name] = b.String()

		skipSpace()
		if i < len(s) && s[i] == ',' {
			i++
			continue
		}
		if i < len(s) && s[i] == '}' {
			continue
		}
		return nil, "", false
	}
}

func validMetricName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !isNameChar(name[i], i == 0) {
			return false
		}
	}
	return true
}

func isNameChar(c byte, first bool) bool {
	return isLabelChar(c, first) || c == ':'
}

func isLabelChar(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return !first
	}
	return false
}
