package changes

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cuemby/katalog/pkg/types"
)

// ErrNoFingerprint is returned by Fingerprint when a Metadata carries
// no value at all (a bare "clear this key" marker).
var ErrNoFingerprint = errors.New("metadata has no value to fingerprint")

// ErrNonSerializable is returned when a JSON-typed value cannot be
// canonically encoded.
var ErrNonSerializable = errors.New("value is not JSON-serializable")

// ErrNaiveDatetime is returned when a DATETIME-typed value carries no
// timezone. Go's time.Time is always zone-aware (UTC by default), so
// in practice this is unreachable; the check is kept so callers that
// construct times from external wire formats have a single place to
// enforce the invariant described in the original source.
var ErrNaiveDatetime = errors.New("datetime value has no timezone")

// Fingerprint computes the deterministic canonical encoding of a
// Metadata's current value, used for equality and dedup. Datetimes are
// normalized to UTC RFC3339Nano; JSON values are encoded with sorted
// object keys (encoding/json already sorts map keys on Marshal);
// relation/collection fingerprints are the referenced id.
func Fingerprint(m *types.Metadata) (string, error) {
	switch m.ValueType {
	case types.ValueString:
		if m.ValueText == nil {
			return "", ErrNoFingerprint
		}
		return *m.ValueText, nil
	case types.ValueInt:
		if m.ValueInt == nil {
			return "", ErrNoFingerprint
		}
		return strconv.FormatInt(*m.ValueInt, 10), nil
	case types.ValueFloat:
		if m.ValueReal == nil {
			return "", ErrNoFingerprint
		}
		return strconv.FormatFloat(*m.ValueReal, 'g', -1, 64), nil
	case types.ValueDatetime:
		if m.ValueDatetime == nil {
			return "", ErrNoFingerprint
		}
		if err := RequireAware(*m.ValueDatetime); err != nil {
			return "", err
		}
		return m.ValueDatetime.UTC().Format(time.RFC3339Nano), nil
	case types.ValueJSON:
		if m.ValueJSON == nil {
			return "", ErrNoFingerprint
		}
		return canonicalJSON(m.ValueJSON)
	case types.ValueRelation:
		if m.ValueRelationID == nil {
			return "", ErrNoFingerprint
		}
		return strconv.FormatInt(*m.ValueRelationID, 10), nil
	case types.ValueCollection:
		if m.ValueCollectionID == nil {
			return "", ErrNoFingerprint
		}
		return strconv.FormatInt(*m.ValueCollectionID, 10), nil
	default:
		return "", fmt.Errorf("unknown value type %q", m.ValueType)
	}
}

// HasValue reports whether m carries a populated typed value matching
// its ValueType.
func HasValue(m *types.Metadata) bool {
	_, err := Fingerprint(m)
	return err == nil
}

// RequireAware validates that t carries timezone information. See the
// ErrNaiveDatetime doc comment for why this is a standing no-op in Go.
func RequireAware(t time.Time) error {
	if t.Location() == nil {
		return ErrNaiveDatetime
	}
	return nil
}

// canonicalJSON marshals v deterministically: map keys are sorted
// (encoding/json's default behavior for map[string]any), so two
// logically-equal values with different construction order encode
// identically.
func canonicalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNonSerializable, err)
	}
	return string(b), nil
}

// IsFalsey reports whether a staged Metadata's value is considered
// "falsey" for skip_false / clear_on_false policy purposes: zero int,
// zero float, or empty string.
func IsFalsey(m *types.Metadata) bool {
	switch m.ValueType {
	case types.ValueInt:
		return m.ValueInt != nil && *m.ValueInt == 0
	case types.ValueFloat:
		return m.ValueReal != nil && *m.ValueReal == 0
	case types.ValueString:
		return m.ValueText != nil && *m.ValueText == ""
	default:
		return false
	}
}
