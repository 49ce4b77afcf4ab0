// Package qr encodes attendance session payloads and renders them as PNG codes.
package qr

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrMalformed is returned when a scanned string is not a session or batch payload.
var ErrMalformed = errors.New("malformed qr payload")

// TypeBatch marks a faculty batch payload.
const TypeBatch = "batch"

// SessionPayload is embedded in the session QR code shown to students.
type SessionPayload struct {
	RecordID   int64  `json:"rid"`
	Token      string `json:"t"`
	Lecture    string `json:"l"`
	Faculty    string `json:"f"`
	IssuerRoll int64  `json:"s_id,omitempty"`
	// ExpiresAt is epoch milliseconds.
	ExpiresAt int64 `json:"exp"`
}

// Expired reports whether the payload expiry is before now.
func (p SessionPayload) Expired(now time.Time) bool {
	return p.ExpiresAt > 0 && now.UnixMilli() > p.ExpiresAt
}

// BatchPayload carries a pre-collected roll list for a session.
type BatchPayload struct {
	Type     string  `json:"type"`
	RecordID int64   `json:"rid"`
	Token    string  `json:"t"`
	Lecture  string  `json:"l"`
	Rolls    []int64 `json:"rolls"`
	// Timestamp is epoch milliseconds at generation time.
	Timestamp int64 `json:"ts"`
}

// NewSessionPayload builds a session payload that lapses at expiresAt.
// A zero expiresAt leaves the payload without an expiry.
func NewSessionPayload(recordID int64, token, lecture, faculty string, issuerRoll int64, expiresAt time.Time) SessionPayload {
	p := SessionPayload{
		RecordID:   recordID,
		Token:      token,
		Lecture:    lecture,
		Faculty:    faculty,
		IssuerRoll: issuerRoll,
	}
	if !expiresAt.IsZero() {
		p.ExpiresAt = expiresAt.UnixMilli()
	}
	return p
}

// NewBatchPayload builds a batch payload with deduplicated, sorted rolls.
func NewBatchPayload(recordID int64, token, lecture string, rolls []int64, now time.Time) (BatchPayload, error) {
	clean := NormalizeRolls(rolls)
	if len(clean) == 0 {
		return BatchPayload{}, fmt.Errorf("batch requires at least one roll")
	}
	return BatchPayload{
		Type:      TypeBatch,
		RecordID:  recordID,
		Token:     token,
		Lecture:   lecture,
		Rolls:     clean,
		Timestamp: now.UnixMilli(),
	}, nil
}

// Encode marshals a payload into the string placed in the code.
func Encode(payload interface{}) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode qr payload: %w", err)
	}
	return string(raw), nil
}

// DecodeSession parses a scanned session payload.
func DecodeSession(raw string) (SessionPayload, error) {
	var p SessionPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &p); err != nil {
		return SessionPayload{}, ErrMalformed
	}
	if p.RecordID <= 0 || p.Token == "" {
		return SessionPayload{}, ErrMalformed
	}
	return p, nil
}

// DecodeBatch parses a scanned batch payload.
func DecodeBatch(raw string) (BatchPayload, error) {
	var p BatchPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &p); err != nil {
		return BatchPayload{}, ErrMalformed
	}
	if p.Type != TypeBatch || p.RecordID <= 0 || p.Token == "" {
		return BatchPayload{}, ErrMalformed
	}
	p.Rolls = NormalizeRolls(p.Rolls)
	return p, nil
}

// NormalizeRolls drops non-positive and duplicate rolls and sorts ascending.
func NormalizeRolls(rolls []int64) []int64 {
	seen := make(map[int64]struct{}, len(rolls))
	out := make([]int64, 0, len(rolls))
	for _, r := range rolls {
		if r <= 0 {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
