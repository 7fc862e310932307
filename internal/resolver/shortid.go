package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/dyluth/streams/internal/secure"
)

// MinShortIDLength is the minimum required length for short IDs.
// Set to 6 characters to balance usability with collision avoidance.
const MinShortIDLength = 6

// ShortIDLength is how many characters ShortID shows.
const ShortIDLength = 8

// ShortID returns the display form of a message address: the tail of its
// local identifier. Identifiers are time ordered, so their heads collide for
// messages written close together while their tails are random.
func ShortID(messageID string) string {
	local := secure.LocalID(messageID)
	if len(local) <= ShortIDLength {
		return local
	}
	return local[len(local)-ShortIDLength:]
}

// Resolve finds the one candidate message address that shortID refers to.
// A full address is returned when it is a candidate. Otherwise shortID must
// match the start or the end of exactly one candidate's local identifier.
func Resolve(candidates []string, shortID string) (string, error) {
	if strings.Contains(shortID, "~") {
		for _, c := range candidates {
			if c == shortID {
				return c, nil
			}
		}
		return "", &NotFoundError{ShortID: shortID}
	}

	// Validate minimum length
	if len(shortID) < MinShortIDLength {
		return "", fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(shortID))
	}

	needle := strings.ToLower(shortID)
	var matches []string
	for _, c := range candidates {
		local := strings.ToLower(secure.LocalID(c))
		if strings.HasPrefix(local, needle) || strings.HasSuffix(local, needle) {
			matches = append(matches, c)
		}
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{ShortID: shortID}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{ShortID: shortID, Matches: matches}
	}
}

// Scanner lists stored node addresses by prefix.
type Scanner interface {
	ScanSouls(ctx context.Context, prefix string) ([]string, error)
}

// ResolveInStore resolves shortID against every message address of the
// stream owned by pub without reading the stream.
func ResolveInStore(ctx context.Context, store Scanner, pub, shortID string) (string, error) {
	souls, err := store.ScanSouls(ctx, "")
	if err != nil {
		return "", fmt.Errorf("failed to search for message: %w", err)
	}
	suffix := "~" + pub + "."
	var candidates []string
	for _, soul := range souls {
		local := strings.TrimSuffix(soul, suffix)
		// Collections such as messages~pub. are not messages
		if local == soul || local == "messages" || strings.HasPrefix(local, "streams") {
			continue
		}
		candidates = append(candidates, soul)
	}
	return Resolve(candidates, shortID)
}

// NotFoundError indicates no messages matched the short ID.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no messages found matching '%s'", e.ShortID)
}

// AmbiguousError indicates multiple messages matched the short ID.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d messages", e.ShortID, len(e.Matches))
}

// FormatAmbiguousError creates a user-friendly error message for ambiguous short IDs.
// Lists all matching IDs (up to 10, then "...and N more").
func FormatAmbiguousError(err *AmbiguousError) string {
	msg := fmt.Sprintf("Error: ambiguous short ID '%s' matches %d messages:\n", err.ShortID, len(err.Matches))

	// List up to 10 matches
	displayCount := len(err.Matches)
	if displayCount > 10 {
		displayCount = 10
	}

	for i := 0; i < displayCount; i++ {
		msg += fmt.Sprintf("  %s\n", err.Matches[i])
	}

	if len(err.Matches) > 10 {
		msg += fmt.Sprintf("  ...and %d more\n", len(err.Matches)-10)
	}

	msg += "\nUse a longer ID to uniquely identify the message."
	return msg
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	_, ok := err.(*AmbiguousError)
	return ok
}
