package engine

import "fmt"

// Kind classifies what went wrong on the way from page to clipboard.
type Kind int

const (
	// Recognition: no provider recognized the page.
	Recognition Kind = iota + 1
	// Extraction: hash, date or message could not be obtained.
	Extraction
	// Formatting: subject enrichment failed. The escaped subject is used
	// instead, so this kind is only ever logged.
	Formatting
	// Insertion: a wait gave up or the page did not have the expected shape.
	Insertion
)

func (k Kind) String() string {
	switch k {
	case Recognition:
		return "recognition"
	case Extraction:
		return "extraction"
	case Formatting:
		return "formatting"
	case Insertion:
		return "insertion"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Failure is an error from one stage of the engine.
type Failure struct {
	Kind Kind
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failure: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }
