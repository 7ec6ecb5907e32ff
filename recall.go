package mentor

import (
	"encoding"
	"encoding/json"
	"fmt"
)

// Recall represents how well a quiz item was remembered during a review.
type Recall int

const (
	RecallFail Recall = iota + 1 // Could not recall the answer.
	RecallHard                   // Recalled with significant difficulty.
	RecallGood                   // Recalled with some effort.
	RecallEasy                   // Recalled effortlessly.
)

var (
	recallNames = [...]string{
		RecallFail: "Fail",
		RecallHard: "Hard",
		RecallGood: "Good",
		RecallEasy: "Easy",
	}
	recallByName = map[string]Recall{
		"Fail": RecallFail,
		"Hard": RecallHard,
		"Good": RecallGood,
		"Easy": RecallEasy,
	}
)

// Compile-time interface checks.
var (
	_ fmt.Stringer             = Recall(0)
	_ json.Marshaler           = Recall(0)
	_ json.Unmarshaler         = (*Recall)(nil)
	_ encoding.TextMarshaler   = Recall(0)
	_ encoding.TextUnmarshaler = (*Recall)(nil)
)

// String returns the name of the grade ("Fail", "Hard", "Good", "Easy").
// For invalid values it returns "Recall(n)".
func (r Recall) String() string {
	if r.IsValid() {
		return recallNames[r]
	}
	return fmt.Sprintf("Recall(%d)", int(r))
}

// IsValid reports whether r is a valid recall grade (Fail through Easy).
func (r Recall) IsValid() bool {
	return r >= RecallFail && r <= RecallEasy
}

// MarshalText implements encoding.TextMarshaler.
func (r Recall) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRecall, int(r))
	}
	return []byte(recallNames[r]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Recall) UnmarshalText(text []byte) error {
	v, ok := recallByName[string(text)]
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidRecall, text)
	}
	*r = v
	return nil
}

// MarshalJSON implements json.Marshaler. Recall serializes as a JSON string.
func (r Recall) MarshalJSON() ([]byte, error) {
	text, err := r.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON implements json.Unmarshaler. Expects a JSON string.
func (r *Recall) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRecall, data)
	}
	return r.UnmarshalText([]byte(s))
}
