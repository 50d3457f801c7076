package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "provenance/pkg/domain-errors"
)

// TestParseAccountID_Invariants validates the parsing invariant:
// "account ids are non-empty, bounded, printable tokens"
func TestParseAccountID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseAccountID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("trims surrounding whitespace", func(t *testing.T) {
		id, err := ParseAccountID("  0xabc  ")
		require.NoError(t, err)
		assert.Equal(t, AccountID("0xabc"), id)
	})

	t.Run("accepts max length", func(t *testing.T) {
		_, err := ParseAccountID(strings.Repeat("a", MaxAccountIDLength))
		require.NoError(t, err)
	})
}

// TestParseAccountID_SecurityInvariants validates trust boundary rules.
func TestParseAccountID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"Null byte injection", "seller\x00admin", true},
		{"Oversized input", strings.Repeat("a", MaxAccountIDLength+1), true},
		{"Embedded whitespace", "seller one", true},
		{"Invalid UTF-8", string([]byte{0xff, 0xfe}), true},
		{"Whitespace only", "   ", true},

		{"Wallet address", "0x5B38Da6a701c568545dCfcB03FcB875f56beddC4", false},
		{"Plain name", "escrow", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAccountID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestParseSequenceIDs(t *testing.T) {
	t.Run("accepts zero", func(t *testing.T) {
		id, err := ParseBatchID("0")
		require.NoError(t, err)
		assert.Equal(t, BatchID(0), id)
	})

	t.Run("rejects negative", func(t *testing.T) {
		_, err := ParseLotID("-1")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects non numeric", func(t *testing.T) {
		_, err := ParseListingID("abc")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "listing id")
	})

	t.Run("string form round-trips", func(t *testing.T) {
		id, err := ParseBatchID(BatchID(9999).String())
		require.NoError(t, err)
		assert.Equal(t, BatchID(9999), id)
	})
}

func TestAssetRef(t *testing.T) {
	t.Run("kinds are distinct for the same number", func(t *testing.T) {
		assert.NotEqual(t, BatchAsset(1), LotAsset(1))
	})

	t.Run("parses path segments", func(t *testing.T) {
		ref, err := ParseAssetRef("LOT", "7")
		require.NoError(t, err)
		assert.Equal(t, LotAsset(7), ref)
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		_, err := ParseAssetRef("pallet", "7")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("keys a JSON object", func(t *testing.T) {
		in := map[AssetRef]int{BatchAsset(3): 1, LotAsset(4): 2}
		raw, err := json.Marshal(in)
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"batch:3"`)

		var out map[AssetRef]int
		require.NoError(t, json.Unmarshal(raw, &out))
		assert.Equal(t, in, out)
	})

	t.Run("rejects malformed text", func(t *testing.T) {
		var ref AssetRef
		require.Error(t, ref.UnmarshalText([]byte("batch-3")))
		require.Error(t, ref.UnmarshalText([]byte("lot:x")))
	})
}
