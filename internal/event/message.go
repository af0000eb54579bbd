package event

import (
	"regexp"

	"golang.org/x/text/unicode/norm"
)

// colorCode matches legacy chat color/format codes such as "&c" or "§l".
var colorCode = regexp.MustCompile(`(?i)[&§][0-9a-fk-or]`)

// Message is chat text carrying inline color codes.
//
// The colored form is kept verbatim (after NFC normalization) so that rewrites
// can preserve formatting; the plain form is what rule patterns match against.
type Message struct {
	colored string
}

// NewMessage creates a Message from raw text.
// Text is NFC normalized so that visually identical input matches the same patterns.
func NewMessage(text string) Message {
	return Message{colored: norm.NFC.String(text)}
}

// Colored returns the text including color codes.
func (m Message) Colored() string {
	return m.colored
}

// Plain returns the text with all color codes stripped.
func (m Message) Plain() string {
	return colorCode.ReplaceAllString(m.colored, "")
}

// String implements fmt.Stringer using the plain form.
func (m Message) String() string {
	return m.Plain()
}

// Equal reports whether two messages have the same colored text.
func (m Message) Equal(other Message) bool {
	return m.colored == other.colored
}
