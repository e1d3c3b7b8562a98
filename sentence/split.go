// Package sentence turns text into protocol-safe chunks: Split for complete
// input and Aggregate for text that arrives incrementally.
package sentence

import (
	"strings"
	"unicode"

	pkgerrors "github.com/playht/playht-go-sdk/pkg/errors"
)

// Chunk length limits, in runes.
const (
	// LineMaxLength is the longest text sent in one synthesis request.
	LineMaxLength = 500
	// DesiredLineLength is the length at which Aggregate stops combining sentences.
	DesiredLineLength = 250
)

var punctuation = strings.NewReplacer(
	"“", `"`, "”", `"`, "„", `"`, "«", `"`, "»", `"`,
	"‘", "'", "’", "'", "‚", "'",
	"…", ".",
)

// normalize collapses whitespace runs and replaces smart punctuation.
func normalize(text string) string {
	return strings.Join(strings.Fields(punctuation.Replace(text)), " ")
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '?', '!', '。', '？', '！', '؟', '।', '‼', '⁇', '⁈', '⁉':
		return true
	}
	return false
}

// isCloser reports runes that stay attached to the sentence they close.
func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '}', '」', '』':
		return true
	}
	return false
}

func hasContent(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			return true
		}
	}
	return false
}

func runeLen(s string) int {
	return len([]rune(s))
}

// boundaryAt inspects the terminator run starting at runes[i]. It returns the
// index just past the run, the index past any closers, and whether the run
// ends a sentence (followed by whitespace, or by the end of text when atEnd).
func boundaryAt(runes []rune, i int, atEnd bool) (runEnd, closeEnd int, ok bool) {
	runEnd = i
	for runEnd < len(runes) && isTerminator(runes[runEnd]) {
		runEnd++
	}
	closeEnd = runEnd
	for closeEnd < len(runes) && isCloser(runes[closeEnd]) {
		closeEnd++
	}
	if closeEnd == len(runes) {
		return runEnd, closeEnd, atEnd
	}
	return runEnd, closeEnd, unicode.IsSpace(runes[closeEnd])
}

// segment cuts normalized text into sentences. A terminator run collapses to
// its first terminator; segments without letters or digits are dropped.
func segment(text string) []string {
	runes := []rune(text)
	var segs []string
	var cur []rune
	emit := func() {
		if s := strings.TrimSpace(string(cur)); hasContent(s) {
			segs = append(segs, s)
		}
		cur = cur[:0]
	}

	for i := 0; i < len(runes); {
		r := runes[i]
		if !isTerminator(r) {
			cur = append(cur, r)
			i++
			continue
		}
		runEnd, closeEnd, ok := boundaryAt(runes, i, true)
		if !ok {
			cur = append(cur, runes[i:runEnd]...)
			i = runEnd
			continue
		}
		cur = append(cur, r)
		cur = append(cur, runes[runEnd:closeEnd]...)
		emit()
		i = closeEnd
	}
	emit()
	return segs
}

// Split splits text into lines of at most LineMaxLength runes.
func Split(text string) ([]string, error) {
	return SplitWithLimit(text, LineMaxLength)
}

// SplitWithLimit splits text into lines of at most maxLen runes. Whole
// sentences are packed greedily; a sentence longer than maxLen is cut at its
// last comma (kept on the first line) or last space before the limit. A run
// of maxLen runes with neither fails with KindUnsplittableInput.
func SplitWithLimit(text string, maxLen int) ([]string, error) {
	if maxLen <= 0 {
		return nil, pkgerrors.Newf(pkgerrors.KindInvalidOption, "sentence", "Split",
			"max length must be positive, got %d", maxLen)
	}
	return pack(segment(normalize(text)), maxLen)
}

func pack(segs []string, maxLen int) ([]string, error) {
	var lines []string
	var cur strings.Builder
	curLen := 0
	flush := func() {
		if curLen > 0 {
			lines = append(lines, cur.String())
			cur.Reset()
			curLen = 0
		}
	}
	add := func(s string, n int) {
		if curLen > 0 && curLen+1+n > maxLen {
			flush()
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(s)
		curLen += n
	}

	for _, seg := range segs {
		n := runeLen(seg)
		if n <= maxLen {
			add(seg, n)
			continue
		}
		parts, err := splitLong(seg, maxLen)
		if err != nil {
			return nil, err
		}
		flush()
		lines = append(lines, parts[:len(parts)-1]...)
		last := parts[len(parts)-1]
		add(last, runeLen(last))
	}
	flush()
	return lines, nil
}

// splitLong cuts one over-long sentence into pieces of at most maxLen runes.
func splitLong(seg string, maxLen int) ([]string, error) {
	runes := []rune(seg)
	var parts []string
	for len(runes) > maxLen {
		window := runes[:maxLen]
		cut := lastIndex(window, ',') + 1
		if cut <= 1 {
			cut = lastIndexFunc(window, unicode.IsSpace)
		}
		if cut <= 0 {
			return nil, pkgerrors.Newf(pkgerrors.KindUnsplittableInput, "sentence", "Split",
				"no comma or space in %d runes starting %q", maxLen, preview(window))
		}
		if head := strings.TrimSpace(string(runes[:cut])); head != "" {
			parts = append(parts, head)
		}
		runes = []rune(strings.TrimLeftFunc(string(runes[cut:]), unicode.IsSpace))
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts, nil
}

func lastIndex(runes []rune, target rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == target {
			return i
		}
	}
	return -1
}

func lastIndexFunc(runes []rune, f func(rune) bool) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if f(runes[i]) {
			return i
		}
	}
	return -1
}

func preview(runes []rune) string {
	const n = 24
	if len(runes) > n {
		return string(runes[:n]) + "..."
	}
	return string(runes)
}
