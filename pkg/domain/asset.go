package domain

import (
	"fmt"
	"strconv"
	"strings"

	dErrors "provenance/pkg/domain-errors"
)

// AssetKind distinguishes the two custody units the ledger tracks.
type AssetKind string

const (
	AssetKindBatch AssetKind = "batch"
	AssetKindLot   AssetKind = "lot"
)

// ParseAssetKind accepts "batch" or "lot" (case-insensitive).
func ParseAssetKind(s string) (AssetKind, error) {
	switch AssetKind(strings.ToLower(strings.TrimSpace(s))) {
	case AssetKindBatch:
		return AssetKindBatch, nil
	case AssetKindLot:
		return AssetKindLot, nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "asset kind must be \"batch\" or \"lot\"")
	}
}

func (k AssetKind) String() string { return string(k) }

// AssetRef addresses one batch or one lot. It is comparable and is used as a
// map key for approvals, custody chains and return requests.
type AssetRef struct {
	Kind AssetKind
	ID   uint64
}

// BatchAsset returns the ref of a batch.
func BatchAsset(id BatchID) AssetRef { return AssetRef{Kind: AssetKindBatch, ID: uint64(id)} }

// LotAsset returns the ref of a lot.
func LotAsset(id LotID) AssetRef { return AssetRef{Kind: AssetKindLot, ID: uint64(id)} }

func (r AssetRef) String() string {
	return string(r.Kind) + ":" + strconv.FormatUint(r.ID, 10)
}

// MarshalText renders the ref as "kind:id" so it can key JSON objects.
func (r AssetRef) MarshalText() ([]byte, error) {
	if r.Kind == "" {
		return nil, fmt.Errorf("asset ref has no kind")
	}
	return []byte(r.String()), nil
}

// UnmarshalText parses "kind:id".
func (r *AssetRef) UnmarshalText(text []byte) error {
	kindPart, idPart, ok := strings.Cut(string(text), ":")
	if !ok {
		return fmt.Errorf("malformed asset ref %q", string(text))
	}
	kind, err := ParseAssetKind(kindPart)
	if err != nil {
		return err
	}
	v, err := strconv.ParseUint(idPart, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed asset id in %q: %w", string(text), err)
	}
	r.Kind = kind
	r.ID = v
	return nil
}

// ParseAssetRef builds a ref from the two path segments used by the HTTP layer.
func ParseAssetRef(kind, id string) (AssetRef, error) {
	k, err := ParseAssetKind(kind)
	if err != nil {
		return AssetRef{}, err
	}
	v, err := parseSequence(id, string(k)+" id")
	if err != nil {
		return AssetRef{}, err
	}
	return AssetRef{Kind: k, ID: v}, nil
}
