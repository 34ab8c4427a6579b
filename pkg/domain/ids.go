// Package domain holds the domain primitives shared across bounded contexts.
// Primitives validate at parse time so services never see malformed values.
package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "celebrate/pkg/domain-errors"
)

// DonorID identifies the donor who owns a pledge.
type DonorID uuid.UUID

// CelebrationID identifies a single escrowed pledge.
type CelebrationID uuid.UUID

// CandidateID is the FEC-style candidate identifier (e.g. "H8CA12345").
type CandidateID string

// BillID identifies the legislation a pledge is conditioned on (e.g. "hr-1234-118").
type BillID string

// IdempotencyKey is the client-supplied token that makes pledge creation retry-safe.
type IdempotencyKey string

const (
	maxCodeLength           = 64
	maxIdempotencyKeyLength = 255
)

func (d DonorID) String() string       { return uuid.UUID(d).String() }
func (d DonorID) IsNil() bool          { return uuid.UUID(d) == uuid.Nil }
func (c CelebrationID) String() string { return uuid.UUID(c).String() }
func (c CelebrationID) IsNil() bool    { return uuid.UUID(c) == uuid.Nil }

func (c CandidateID) String() string    { return string(c) }

// State returns the two-letter state embedded in House and Senate ids
// ("H8NY00001" is NY). Presidential and malformed ids carry none.
func (c CandidateID) State() (string, bool) {
	s := string(c)
	if len(s) < 4 || (s[0] != 'H' && s[0] != 'S') || !isDigit(s[1]) || !isUpper(s[2]) || !isUpper(s[3]) {
		return "", false
	}
	return s[2:4], true
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
func isUpper(b byte) bool { return b >= 'A' && b <= 'Z' }
func (b BillID) String() string         { return string(b) }
func (k IdempotencyKey) String() string { return string(k) }

// NewCelebrationID returns a fresh random celebration id.
func NewCelebrationID() CelebrationID {
	return CelebrationID(uuid.New())
}

// ParseDonorID parses a non-nil UUID.
func ParseDonorID(s string) (DonorID, error) {
	u, err := parseUUID(s, "donor_id")
	if err != nil {
		return DonorID{}, err
	}
	return DonorID(u), nil
}

// ParseCelebrationID parses a non-nil UUID.
func ParseCelebrationID(s string) (CelebrationID, error) {
	u, err := parseUUID(s, "celebration_id")
	if err != nil {
		return CelebrationID{}, err
	}
	return CelebrationID(u), nil
}

// ParseCandidateID accepts upper-case alphanumerics only.
func ParseCandidateID(s string) (CandidateID, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if err := validateCode(s, "candidate_id", func(r rune) bool {
		return unicode.IsUpper(r) || unicode.IsDigit(r)
	}); err != nil {
		return "", err
	}
	return CandidateID(s), nil
}

// ParseBillID accepts lower-case alphanumerics and dashes.
func ParseBillID(s string) (BillID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if err := validateCode(s, "bill_id", func(r rune) bool {
		return unicode.IsLower(r) || unicode.IsDigit(r) || r == '-'
	}); err != nil {
		return "", err
	}
	return BillID(s), nil
}

// ParseIdempotencyKey accepts printable ASCII without spaces, up to 255 bytes.
func ParseIdempotencyKey(s string) (IdempotencyKey, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "idempotency key is required")
	}
	if len(s) > maxIdempotencyKeyLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "idempotency key is too long")
	}
	for _, r := range s {
		if r <= ' ' || r > '~' {
			return "", dErrors.New(dErrors.CodeInvalidInput, "idempotency key contains invalid characters")
		}
	}
	return IdempotencyKey(s), nil
}

func parseUUID(s, field string) (uuid.UUID, error) {
	if s == "" || !utf8.ValidString(s) {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+field)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+field)
	}
	return u, nil
}

func validateCode(s, field string, allowed func(rune) bool) error {
	if s == "" {
		return dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	if len(s) > maxCodeLength {
		return dErrors.New(dErrors.CodeInvalidInput, field+" is too long")
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !allowed(r) {
			return dErrors.New(dErrors.CodeInvalidInput, "invalid "+field)
		}
	}
	return nil
}
