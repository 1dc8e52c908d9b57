// Package text provides input validation and light normalization for
// synthesis requests. Heavy linguistic preprocessing (phonemization, number
// expansion) belongs to the model runtimes, not the gateway.
package text

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxLength is the longest accepted input, in characters.
const MaxLength = 5000

// Static errors.
var (
	// ErrEmpty indicates the text is empty after trimming whitespace.
	ErrEmpty = errors.New("text cannot be empty")
	// ErrTooLong indicates the text exceeds MaxLength characters.
	ErrTooLong = errors.New("text too long")
)

// Typographic characters normalized before synthesis.
const (
	emDash       = "—"
	enDash       = "–"
	figureDash   = "‒"
	ellipsis     = "..."
	ellipsisChar = "…"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

// typographyReplacer maps smart punctuation to the plain forms the engine
// runtimes handle consistently.
var typographyReplacer = strings.NewReplacer(
	emDash, "-",
	enDash, "-",
	figureDash, "-",
	ellipsisChar, ellipsis,
	"“", `"`, "”", `"`,
	"‘", "'", "’", "'",
)

// Validate checks the shape of input text: non-empty after trimming and at
// most MaxLength characters. It runs before any file staging or engine call.
func Validate(input string) error {
	if strings.TrimSpace(input) == "" {
		return ErrEmpty
	}

	length := utf8.RuneCountInString(input)
	if length > MaxLength {
		return fmt.Errorf("%w: %d characters (max %d)", ErrTooLong, length, MaxLength)
	}

	return nil
}

// Normalize collapses whitespace, replaces smart punctuation, and ensures a
// sentence-ending mark so the runtimes do not trail off mid-clause.
func Normalize(input string) string {
	normalized := whitespacePattern.ReplaceAllString(input, " ")
	normalized = typographyReplacer.Replace(normalized)
	normalized = strings.TrimSpace(normalized)

	if normalized == "" {
		return ""
	}

	return ensureSentenceEnding(normalized)
}

func ensureSentenceEnding(input string) string {
	lastChar, _ := utf8.DecodeLastRuneInString(input)
	if !unicode.IsPunct(lastChar) {
		return input + "."
	}

	return input
}
