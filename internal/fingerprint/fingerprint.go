// Package fingerprint computes content digests of serialized form state.
// Digests are only compared for equality; they are not cryptographic.
package fingerprint

import (
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/zjrosen/activesave/internal/form"
)

// Of returns the digest of a serialized form.
func Of(serialized string) string {
	return strconv.FormatUint(xxhash.Sum64String(serialized), 16)
}

// Form returns the digest of f's current serialized state.
func Form(f *form.Form) string {
	return Of(f.Serialize())
}

// Dirty reports whether f no longer matches the stored digest.
func Dirty(stored string, f *form.Form) bool {
	return Form(f) != stored
}
