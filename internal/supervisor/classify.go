package supervisor

import (
	"bytes"
	"regexp"
	"strings"
)

// tailSize is how much of the previous output is kept so a fatal message
// split across two chunks is still recognised.
const tailSize = 128

// fatalPattern maps engine output to a crash reason.
type fatalPattern struct {
	re     *regexp.Regexp
	reason CrashReason
}

// fatalPatterns are checked in order; the first match wins.
var fatalPatterns = []fatalPattern{
	{re: regexp.MustCompile(`(?i)address (already )?in use`), reason: ReasonPortInUse},
	{re: regexp.MustCompile(`(?i)invalid option`), reason: ReasonInvalidArguments},
	{re: regexp.MustCompile(`(?i)missing required option`), reason: ReasonInvalidArguments},
}

// outputClassifier scans engine output for fatal messages. It keeps the end
// of the previous chunk so matches may span chunk boundaries.
type outputClassifier struct {
	tail []byte
}

// classify reports the crash reason and offending line for chunk, if any.
// Arbitrary bytes are fine: nothing here assumes valid UTF-8.
func (c *outputClassifier) classify(chunk []byte) (*CrashError, bool) {
	scan := make([]byte, 0, len(c.tail)+len(chunk))
	scan = append(scan, c.tail...)
	scan = append(scan, chunk...)

	if len(scan) > tailSize {
		c.tail = append(c.tail[:0], scan[len(scan)-tailSize:]...)
	} else {
		c.tail = append(c.tail[:0], scan...)
	}

	for _, p := range fatalPatterns {
		loc := p.re.FindIndex(scan)
		if loc == nil {
			continue
		}
		return &CrashError{Reason: p.reason, Detail: lineAround(scan, loc[0], loc[1])}, true
	}
	return nil, false
}

func (c *outputClassifier) reset() {
	c.tail = c.tail[:0]
}

// lineAround returns the printable text of the line containing [start, end).
func lineAround(data []byte, start, end int) string {
	lineStart := bytes.LastIndexByte(data[:start], '\n') + 1
	lineEnd := len(data)
	if i := bytes.IndexByte(data[end:], '\n'); i >= 0 {
		lineEnd = end + i
	}

	line := strings.ToValidUTF8(string(data[lineStart:lineEnd]), "?")
	line = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, line)
	return strings.TrimSpace(line)
}
