package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterminism(t *testing.T) {
	v := map[string]any{
		"model":  "Product",
		"filter": []any{Text("Electronics"), Int(2)},
	}

	fp1, err := Fingerprint(DomainPlan, v)
	require.NoError(t, err)
	fp2, err := Fingerprint(DomainPlan, v)
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2, "Fingerprint must be deterministic")
	assert.Len(t, fp1, 64, "SHA-256 hex is 64 characters")
}

func TestFingerprintDomainSeparation(t *testing.T) {
	v := map[string]any{"a": 1}

	assert.NotEqual(t,
		MustFingerprint(DomainPlan, v),
		MustFingerprint(DomainCursor, v),
		"Same data under different domains must hash differently")
}

func TestFingerprintKeyOrderIndependent(t *testing.T) {
	a := Record{"x": Int(1), "y": Int(2)}
	b := Record{"y": Int(2), "x": Int(1)}

	assert.Equal(t, MustFingerprint(DomainModel, a), MustFingerprint(DomainModel, b))
}

func TestFingerprintDistinguishesTypes(t *testing.T) {
	assert.NotEqual(t,
		MustFingerprint(DomainPlan, Text("1")),
		MustFingerprint(DomainPlan, Int(1)))
}

func TestHashWithDomainSeparator(t *testing.T) {
	// "ab" + 0x00 + "c" must differ from "a" + 0x00 + "bc"
	assert.NotEqual(t, hashWithDomain("ab", []byte("c")), hashWithDomain("a", []byte("bc")))
}

func TestMustFingerprintPanics(t *testing.T) {
	assert.Panics(t, func() {
		MustFingerprint(DomainPlan, struct{}{})
	})
}
