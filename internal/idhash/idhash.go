// Package idhash derives deterministic idempotency keys for dispatched trades.
package idhash

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Key hashes the pipe-joined parts with BLAKE2b-256 and returns the hex digest.
func Key(parts ...string) string {
	sum := blake2b.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// SnipeKey identifies a sniper buy: at most one per user per token.
func SnipeKey(userID, tokenID string) string {
	return Key("snipe", userID, tokenID)
}

// MirrorKey identifies a mirrored trade: at most one per user per leader transaction.
func MirrorKey(userID, leaderTxSignature string) string {
	return Key("mirror", userID, leaderTxSignature)
}
