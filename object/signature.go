package object

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/abstractgit/monocore/internal/readutil"
)

// defaultTimezone is assumed when a signature's timezone offset is missing
// or malformed, rather than rejecting the whole object.
const defaultTimezone = "+0000"

// Signature identifies the author or committer of a commit or tag: a name,
// an email, and the instant the action was taken.
type Signature struct {
	Time  time.Time
	Name  string
	Email string
}

// String renders the signature in its wire form:
// "Name <email> seconds timezone".
func (s Signature) String() string {
	return fmt.Sprintf("%s <%s> %d %s", s.Name, s.Email, s.Time.Unix(), s.Time.Format("-0700"))
}

// IsZero returns whether the signature is the zero value.
func (s Signature) IsZero() bool {
	return s.Time.IsZero() && s.Name == "" && s.Email == ""
}

// NewSignature builds a signature for the given instant, keeping its
// location as passed.
func NewSignature(name, email string, when time.Time) Signature {
	return Signature{Name: name, Email: email, Time: when}
}

// NewSignatureFromBytes parses a signature line's value:
// "User Name <user.email@domain.tld> timestamp timezone". If the timezone
// is missing or fails to parse, it defaults to +0000 rather than failing
// the whole commit/tag.
func NewSignatureFromBytes(b []byte) (Signature, error) {
	sig := Signature{}

	data := readutil.ReadTo(b, '<')
	if len(data) == 0 {
		return sig, fmt.Errorf("couldn't retrieve the name: %w", ErrSignatureInvalid)
	}
	sig.Name = strings.TrimSuffix(string(data), " ")
	offset := len(data) + 1 // skip "<"
	if offset >= len(b) {
		return sig, fmt.Errorf("signature stopped after the name: %w", ErrSignatureInvalid)
	}

	data = readutil.ReadTo(b[offset:], '>')
	if len(data) == 0 {
		return sig, fmt.Errorf("couldn't retrieve the email: %w", ErrSignatureInvalid)
	}
	sig.Email = string(data)
	offset += len(data) + 2 // skip "> "
	if offset > len(b) {
		return sig, fmt.Errorf("signature stopped after the email: %w", ErrSignatureInvalid)
	}
	if offset == len(b) {
		return sig, fmt.Errorf("couldn't retrieve the timestamp: %w", ErrSignatureInvalid)
	}

	rest := b[offset:]
	timestamp := readutil.ReadTo(rest, ' ')
	var timezone []byte
	if timestamp == nil {
		timestamp = rest
	} else {
		timezone = rest[len(timestamp)+1:]
	}
	if len(timestamp) == 0 {
		return sig, fmt.Errorf("couldn't retrieve the timestamp: %w", ErrSignatureInvalid)
	}

	t, err := strconv.ParseInt(string(timestamp), 10, 64)
	if err != nil {
		return sig, fmt.Errorf("invalid timestamp %s: %w", timestamp, ErrSignatureInvalid)
	}
	sig.Time = time.Unix(t, 0).UTC()

	tzStr := string(timezone)
	if tzStr == "" {
		tzStr = defaultTimezone
	}
	tz, err := time.Parse("-0700", tzStr)
	if err != nil {
		tz, _ = time.Parse("-0700", defaultTimezone)
	}
	sig.Time = sig.Time.In(tz.Location())
	return sig, nil
}
