// Package enums holds the string enums shared by the models, the wire format
// and the Postgres enum types.
package enums

import (
	"fmt"
	"slices"
)

func parse[T ~string](value string, valid []T, kind string) (T, error) {
	if v := T(value); slices.Contains(valid, v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, value)
}
