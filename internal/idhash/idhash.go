// Package idhash derives the deterministic identifiers that make candidate
// processing idempotent across restarts and replays.
//
// Every ID is the hex SHA-256 of its parts joined with "|".
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// ComputeCandidateID identifies one epoch of a mint: SHA256(mint|epoch).
func ComputeCandidateID(mint string, epoch int) string {
	return digest(mint, strconv.Itoa(epoch))
}

// ComputeIdempotencyKey is the execution claim key: SHA256(exec|mint|epoch).
// At most one entry order is submitted per key.
func ComputeIdempotencyKey(mint string, epoch int) string {
	return digest("exec", mint, strconv.Itoa(epoch))
}

// ComputePositionID is SHA256(position|mint|epoch|mode), so paper and live
// fills of the same epoch never share a position.
func ComputePositionID(mint string, epoch int, mode string) string {
	return digest("position", mint, strconv.Itoa(epoch), mode)
}

func digest(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
