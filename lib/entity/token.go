package entity

import "fmt"

// FormatToken is the first byte of every header and version array.
// The set is closed: anything else is rejected at decode time.
type FormatToken byte

const (
	ConceptChronologyToken FormatToken = iota + 1
	PatternChronologyToken
	SemanticChronologyToken
	StampChronologyToken
	ConceptVersionToken
	PatternVersionToken
	SemanticVersionToken
	StampVersionToken
)

// ParseToken validates a raw token byte
func ParseToken(b byte) (FormatToken, error) {
	t := FormatToken(b)
	if t < ConceptChronologyToken || t > StampVersionToken {
		return 0, fmt.Errorf("%w: token %d", ErrUnknownFormat, b)
	}
	return t, nil
}

// IsChronology reports whether the token tags a header array
func (t FormatToken) IsChronology() bool {
	return t >= ConceptChronologyToken && t <= StampChronologyToken
}

// IsStamp reports whether the token belongs to a stamp header or stamp version
func (t FormatToken) IsStamp() bool {
	return t == StampChronologyToken || t == StampVersionToken
}

// VersionToken returns the version token matching a chronology token
func (t FormatToken) VersionToken() FormatToken {
	if t.IsChronology() {
		return t + 4
	}
	return t
}

// ChronologyToken returns the chronology token matching a version token
func (t FormatToken) ChronologyToken() FormatToken {
	if !t.IsChronology() {
		return t - 4
	}
	return t
}

func (t FormatToken) String() string {
	switch t {
	case ConceptChronologyToken:
		return "ConceptChronology"
	case PatternChronologyToken:
		return "PatternChronology"
	case SemanticChronologyToken:
		return "SemanticChronology"
	case StampChronologyToken:
		return "Stamp"
	case ConceptVersionToken:
		return "ConceptVersion"
	case PatternVersionToken:
		return "PatternVersion"
	case SemanticVersionToken:
		return "SemanticVersion"
	case StampVersionToken:
		return "StampVersion"
	default:
		return fmt.Sprintf("Token(%d)", byte(t))
	}
}
