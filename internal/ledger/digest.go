package ledger

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/satoshipuzzles/lumaledger/internal/domain"
)

// ─── Integrity Digest ───────────────────────────────────────────────────────
// The digest is an HMAC-SHA256 over the full visible state of a record,
// keyed by a shared secret. It detects accidental or naive out-of-band
// edits of the persisted record. It is NOT a security boundary: a principal
// that can read the secret and edit the store can forge it. Real custody of
// balances requires a server-side ledger.

// ComputeDigest computes the integrity digest for a record.
// Cost is O(history length); histories are per-account and bounded by usage.
func ComputeDigest(secret []byte, rec *domain.AccountRecord) string {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%s|%d\n", rec.AccountID, rec.Balance)
	for _, tx := range rec.History {
		fmt.Fprintf(mac, "%s|%d|%s|%s|%s|%s|%d\n",
			tx.ID, tx.Amount, tx.Type, tx.Reason, tx.PaymentHash, tx.JobID,
			tx.Timestamp.UTC().UnixNano())
	}
	return hex.EncodeToString(mac.Sum(nil))
}

// verifyDigest reports whether the record's stored digest matches a fresh
// recomputation. Constant-time comparison, same as any MAC check.
func verifyDigest(secret []byte, rec *domain.AccountRecord) bool {
	want, err := hex.DecodeString(rec.Digest)
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(ComputeDigest(secret, rec))
	if err != nil {
		return false
	}
	return hmac.Equal(want, got)
}
