// Package binding holds the deterministic hashes that tie an attestation to
// a subject, a poll and a single vote intent.
package binding

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Commitment is hex(SHA-256(pollID "|" optionID "|" bucket)).
func Commitment(pollID, optionID, timestampBucket string) string {
	sum := sha256.Sum256([]byte(pollID + "|" + optionID + "|" + timestampBucket))
	return hex.EncodeToString(sum[:])
}

// NormalizeCommitment strips the accepted encoding prefixes and lowercases.
func NormalizeCommitment(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "sha256:")
	s = strings.TrimPrefix(s, "0x")
	return s
}

// VerifyPayloadBinding recomputes the commitment and requires an exact match.
func VerifyPayloadBinding(pollID, optionID, timestampBucket, committed string) bool {
	if committed == "" {
		return false
	}
	return Commitment(pollID, optionID, timestampBucket) == NormalizeCommitment(committed)
}

// Bucket renders floor(unix / size) in decimal.
func Bucket(t time.Time, size time.Duration) string {
	secs := int64(size / time.Second)
	if secs <= 0 {
		secs = 1
	}
	return strconv.FormatInt(t.Unix()/secs, 10)
}

// BucketWithin reports whether bucket is at most one step from now's bucket.
func BucketWithin(bucket string, now time.Time, size time.Duration) bool {
	b, err := strconv.ParseInt(bucket, 10, 64)
	if err != nil {
		return false
	}
	cur, _ := strconv.ParseInt(Bucket(now, size), 10, 64)
	d := b - cur
	return d >= -1 && d <= 1
}

// Deriver computes keyed one-way identifiers. Keys are process-wide and
// read-only after construction.
type Deriver struct {
	pseudonymKey []byte
	nullifierKey []byte
}

// NewDeriver returns a Deriver. BLAKE2b accepts keys up to 64 bytes; longer
// keys are pre-hashed to fit.
func NewDeriver(pseudonymKey, nullifierKey string) *Deriver {
	return &Deriver{
		pseudonymKey: fitKey(pseudonymKey),
		nullifierKey: fitKey(nullifierKey),
	}
}

// Pseudonym is the only subject-to-pseudonym binding in the system.
func (d *Deriver) Pseudonym(subjectKeyMaterial string) string {
	return keyedHex(d.pseudonymKey, []byte(subjectKeyMaterial))
}

// Nullifier is stable per (poll, pseudonym) and unlinkable across polls
// without the nullifier key.
func (d *Deriver) Nullifier(pollID, pseudonym string) string {
	return keyedHex(d.nullifierKey, []byte(pollID+"|"+pseudonym))
}

func keyedHex(key, msg []byte) string {
	h, err := blake2b.New256(key)
	if err != nil {
		// fitKey guarantees a valid key length.
		panic(err)
	}
	h.Write(msg)
	return hex.EncodeToString(h.Sum(nil))
}

func fitKey(k string) []byte {
	if len(k) <= blake2b.Size {
		return []byte(k)
	}
	sum := blake2b.Sum512([]byte(k))
	return sum[:]
}
