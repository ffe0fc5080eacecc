// Package tristate provides a check result that keeps "confirmed absent"
// apart from "could not be determined".
package tristate

import (
	"encoding/json"
	"fmt"
)

// State is the result of a single compliance check.
// The zero value is Unknown so that an unset check never reads as False.
type State int

const (
	Unknown State = iota
	True
	False
)

// Of converts a known boolean into a State.
func Of(b bool) State {
	if b {
		return True
	}
	return False
}

// Known reports whether the state is True or False.
func (s State) Known() bool {
	return s == True || s == False
}

func (s State) String() string {
	switch s {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes True/False as booleans and Unknown as null.
func (s State) MarshalJSON() ([]byte, error) {
	switch s {
	case True:
		return []byte("true"), nil
	case False:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts true, false or null.
func (s *State) UnmarshalJSON(data []byte) error {
	var b *bool
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("tristate: %w", err)
	}
	if b == nil {
		*s = Unknown
		return nil
	}
	*s = Of(*b)
	return nil
}
