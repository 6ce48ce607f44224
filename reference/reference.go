// Package reference formats commit metadata as a commit reference, the short
// citation `git log --format=reference` prints:
//
//	deadbee (Fix bug, 2024-01-02)
//
// Everything here is a pure function of its arguments.
package reference

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// AbbrevLen is the length of an abbreviated commit hash.
const AbbrevLen = 7

// subjectWrapLen is the first-line length at or below which a second line is
// assumed to be a continuation of a wrapped subject.
const subjectWrapLen = 16

// Reference is a formatted commit reference.
type Reference struct {
	Hash      string
	Abbrev    string
	Subject   string
	DateISO   string
	PlainText string
	HTML      string
}

// Abbreviate returns the first seven characters of hash, or hash itself when
// it is shorter.
func Abbreviate(hash string) string {
	if len(hash) < AbbrevLen {
		return hash
	}
	return hash[:AbbrevLen]
}

// Subject derives a single-line subject from a full commit message.
// Usually that is the trimmed first line. A first line of at most 16
// characters followed by a non-empty second line is treated as a subject
// wrapped in two; the two lines are joined with a space.
func Subject(message string) string {
	lines := strings.Split(message, "\n")
	first := strings.TrimSpace(lines[0])
	if utf8.RuneCountInString(lines[0]) > subjectWrapLen {
		return first
	}
	if len(lines) < 2 || lines[1] == "" {
		return first
	}
	return first + " " + strings.TrimSpace(lines[1])
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#039;",
)

// EscapeHTML escapes &, <, >, " and ' so that s can be embedded in HTML text.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

// PlainText renders "{abbrev} ({subject}, {date})".
func PlainText(hash, subject, dateISO string) string {
	return fmt.Sprintf("%s (%s, %s)", Abbreviate(hash), subject, dateISO)
}

// HTML renders the reference with the abbreviated hash linking to pageURL.
// subjectHTML must already be safe to embed.
func HTML(pageURL, hash, subjectHTML, dateISO string) string {
	return fmt.Sprintf(`<a href="%s">%s</a> (%s, %s)`, pageURL, Abbreviate(hash), subjectHTML, dateISO)
}

// New builds a Reference. subjectHTML may be empty, in which case the escaped
// subject is used.
func New(pageURL, hash, subject, subjectHTML, dateISO string) Reference {
	if subjectHTML == "" {
		subjectHTML = EscapeHTML(subject)
	}
	return Reference{
		Hash:      hash,
		Abbrev:    Abbreviate(hash),
		Subject:   subject,
		DateISO:   dateISO,
		PlainText: PlainText(hash, subject, dateISO),
		HTML:      HTML(pageURL, hash, subjectHTML, dateISO),
	}
}
