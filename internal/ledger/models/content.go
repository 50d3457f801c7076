package models

import (
	"strings"
	"unicode/utf8"

	dErrors "provenance/pkg/domain-errors"
)

// MaxContentRefLength bounds the size of an off-ledger reference.
const MaxContentRefLength = 512

// ContentRef points at content stored outside the ledger (a content hash, a
// CID, a URL). The ledger never dereferences it.
type ContentRef string

func (c ContentRef) String() string { return string(c) }

func (c ContentRef) IsZero() bool { return c == "" }

// ParseContentRef trims and bounds a reference. Empty references are allowed;
// callers that require one check IsZero.
func ParseContentRef(s string) (ContentRef, error) {
	s = strings.TrimSpace(s)
	if len(s) > MaxContentRefLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "content reference is too long")
	}
	if !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "content reference must be valid UTF-8")
	}
	return ContentRef(s), nil
}
