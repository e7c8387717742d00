// Package chunk splits long text into bounded windows that overlap their
// predecessor, so downstream synthesis sees every byte with some context.
package chunk

import (
	"fmt"
	"unicode/utf8"
)

const (
	DefaultSize    = 15000
	DefaultOverlap = 2000
)

// Window is one slice of the input. Start and End are byte offsets into the
// original text; Text == original[Start:End].
type Window struct {
	Index int    `json:"index"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// Split cuts text into windows of at most size bytes. Every window after the
// first starts overlap bytes before the previous window's end. Boundaries
// are moved back to the nearest rune start, so a window may be a few bytes
// shorter than size. Invalid UTF-8 is cut at the byte.
func Split(text string, size, overlap int) ([]Window, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive")
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, size)")
	}
	if text == "" {
		return nil, nil
	}

	var out []Window
	start := 0
	for {
		end := start + size
		if end >= len(text) {
			end = len(text)
		} else {
			end = runeStart(text, end, start+1)
		}
		out = append(out, Window{Index: len(out), Start: start, End: end, Text: text[start:end]})
		if end == len(text) {
			return out, nil
		}
		next := runeStart(text, end-overlap, start+1)
		if next <= start {
			next = end
		}
		start = next
	}
}

// SplitDefault uses 15 KB windows with a 2 KB overlap.
func SplitDefault(text string) []Window {
	out, _ := Split(text, DefaultSize, DefaultOverlap)
	return out
}

// Join reverses Split by dropping each window's leading overlap.
func Join(windows []Window) string {
	if len(windows) == 0 {
		return ""
	}
	total := windows[len(windows)-1].End
	buf := make([]byte, 0, total)
	prevEnd := 0
	for i, w := range windows {
		skip := 0
		if i > 0 {
			skip = prevEnd - w.Start
		}
		if skip < 0 || skip > len(w.Text) {
			skip = 0
		}
		buf = append(buf, w.Text[skip:]...)
		prevEnd = w.End
	}
	return string(buf)
}

// Texts returns the window bodies in order.
func Texts(windows []Window) []string {
	out := make([]string, len(windows))
	for i, w := range windows {
		out[i] = w.Text
	}
	return out
}

// runeStart walks i back to the start of a UTF-8 sequence, never below min
// and never more than utf8.UTFMax-1 bytes. Invalid input without a nearby
// rune start is cut at i.
func runeStart(s string, i, min int) int {
	if i >= len(s) {
		return len(s)
	}
	for j := i; j > min && i-j < utf8.UTFMax; j-- {
		if utf8.RuneStart(s[j]) {
			return j
		}
	}
	return i
}
