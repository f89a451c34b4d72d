package identity

import (
	"crypto/sha256"
	"fmt"

	"github.com/shopspring/decimal"
)

// AmountBucketStep is the rounding step for amount buckets. Near-identical
// recurring amounts collapse into one bucket while materially different
// products from the same vendor separate.
var AmountBucketStep = decimal.NewFromInt(50)

// Fingerprint is a deterministic identity for a vendor, optionally scoped to
// an amount bucket. Fallback marks fingerprints derived without a tax id;
// those are lower certainty and must never be mixed with tax-id-backed
// fingerprints in confidence scoring.
type Fingerprint struct {
	Value        string // vendor+amount identity
	VendorValue  string // vendor-only identity, groups all products
	AmountBucket string
	Fallback     bool
}

// MakeFingerprint derives a fingerprint from a vendor name, tax id, and an
// optional amount. Same normalized inputs always produce the same value.
func MakeFingerprint(name, taxID string, amount *decimal.Decimal) Fingerprint {
	normalized := Normalize(name)

	fp := Fingerprint{}
	if amount != nil {
		fp.AmountBucket = bucketAmount(*amount)
	}

	if taxID == "" {
		fp.Fallback = true
		fp.VendorValue = hashParts("vf", normalized)
		fp.Value = hashParts("vf", normalized, fp.AmountBucket)
		return fp
	}

	fp.VendorValue = hashParts("v1", normalized, taxID)
	fp.Value = hashParts("v1", normalized, taxID, fp.AmountBucket)
	return fp
}

// bucketAmount rounds an amount to the nearest bucket step.
func bucketAmount(amount decimal.Decimal) string {
	bucket := amount.Div(AmountBucketStep).Round(0).Mul(AmountBucketStep)
	return bucket.StringFixed(0)
}

func hashParts(parts ...string) string {
	data := ""
	for i, p := range parts {
		if i > 0 {
			data += "|"
		}
		data += p
	}
	sum := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", sum[:16])
}
