package sandbox

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashScript computes the content hash of the exact script text handed to a
// runtime. The hash is recorded on every ExecutionResult so the gate and any
// later audit can re-verify which script produced a value. Identical script
// text always yields an identical hash.
func HashScript(script string) string {
	sum := sha256.Sum256([]byte(script))
	return hex.EncodeToString(sum[:])
}
