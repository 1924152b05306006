package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DomainPointsAwarded separates change event ids from any other hash.
// The version suffix allows a future algorithm change.
const DomainPointsAwarded = "loyalty/points-awarded/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventID computes the content-addressed id of the change event for the
// award identified by idempotencyKey on cardID. Timestamps are excluded so
// the id is stable across re-emission.
func EventID(idempotencyKey, cardID string) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"card_id":         cardID,
		"idempotency_key": NormalizeKey(idempotencyKey),
		"type":            EventPointsAwarded,
	})
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainPointsAwarded, canonical), nil
}

// NormalizeID trims surrounding space from a customer, business or
// program id. Every write and lookup goes through it so an id stored once
// is found again however the caller padded it.
func NormalizeID(id string) string {
	return strings.TrimSpace(id)
}

// NormalizeKey trims surrounding space and NFC-normalizes an idempotency
// key so visually identical keys from different clients collide.
func NormalizeKey(key string) string {
	return strings.TrimSpace(norm.NFC.String(key))
}
