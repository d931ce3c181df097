// Package dedup recognises re-captures of the same physical vehicle using
// perceptual fingerprints of the extracted vehicle region.
package dedup

import (
	"fmt"
	"image"

	"github.com/corona10/goimagehash"
)

// hashSize is the per-axis DCT size of the perceptual hash. A 16x16 hash
// yields a 256-bit fingerprint.
const hashSize = 16

// MaxDistance is the maximum Hamming distance between two fingerprints.
const MaxDistance = hashSize * hashSize

// Fingerprint is a fixed-length perceptual fingerprint of an image region.
// Visually similar regions have small pairwise distance. Fingerprints are
// immutable once created and only meaningful through Similarity.
type Fingerprint struct {
	hash *goimagehash.ExtImageHash
}

// FromImage computes the perceptual fingerprint of an image region.
func FromImage(img image.Image) (Fingerprint, error) {
	if img == nil {
		return Fingerprint{}, fmt.Errorf("nil image")
	}
	h, err := goimagehash.ExtPerceptionHash(img, hashSize, hashSize)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("perception hash: %w", err)
	}
	return Fingerprint{hash: h}, nil
}

// FromBits builds a fingerprint from raw hash words. len(words) must be
// MaxDistance/64. Used by tests to construct fingerprints with known
// pairwise distances.
func FromBits(words []uint64) Fingerprint {
	return Fingerprint{hash: goimagehash.NewExtImageHash(words, goimagehash.PHash, MaxDistance)}
}

// Similarity returns 1 - distance/MaxDistance: 1.0 for identical
// fingerprints, approaching 0 for maximally different ones.
func (f Fingerprint) Similarity(other Fingerprint) float64 {
	if f.hash == nil || other.hash == nil {
		return 0
	}
	d, err := f.hash.Distance(other.hash)
	if err != nil {
		// Mismatched hash lengths cannot occur for fingerprints produced by
		// one pipeline instance.
		return 0
	}
	return 1 - float64(d)/float64(MaxDistance)
}
