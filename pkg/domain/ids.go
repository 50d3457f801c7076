package domain

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	dErrors "provenance/pkg/domain-errors"
)

// MaxAccountIDLength bounds account identifiers accepted at trust boundaries.
const MaxAccountIDLength = 128

// AccountID is a stable, already-authenticated identity (a wallet address,
// a subject claim, the escrow holder). The ledger only compares them.
type AccountID string

func (a AccountID) String() string { return string(a) }

// IsZero reports whether the identity is unset.
func (a AccountID) IsZero() bool { return a == "" }

// ParseAccountID validates an identity received from outside the core.
func ParseAccountID(s string) (AccountID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "account id is required")
	}
	if len(s) > MaxAccountIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "account id is too long")
	}
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "account id must be valid UTF-8")
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "account id must not contain whitespace")
		}
	}
	return AccountID(s), nil
}

// Sequential identifiers. Each entity table allocates its own sequence
// starting at zero; ids are never reused.
type (
	BatchID   uint64
	LotID     uint64
	ListingID uint64
	ReturnID  uint64
	DefectID  uint64
)

func (id BatchID) String() string   { return strconv.FormatUint(uint64(id), 10) }
func (id LotID) String() string     { return strconv.FormatUint(uint64(id), 10) }
func (id ListingID) String() string { return strconv.FormatUint(uint64(id), 10) }
func (id ReturnID) String() string  { return strconv.FormatUint(uint64(id), 10) }
func (id DefectID) String() string  { return strconv.FormatUint(uint64(id), 10) }

// ParseBatchID parses a decimal batch id.
func ParseBatchID(s string) (BatchID, error) {
	v, err := parseSequence(s, "batch id")
	return BatchID(v), err
}

// ParseLotID parses a decimal lot id.
func ParseLotID(s string) (LotID, error) {
	v, err := parseSequence(s, "lot id")
	return LotID(v), err
}

// ParseListingID parses a decimal listing id.
func ParseListingID(s string) (ListingID, error) {
	v, err := parseSequence(s, "listing id")
	return ListingID(v), err
}

func parseSequence(s, field string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, field+" must be a non-negative integer")
	}
	return v, nil
}
