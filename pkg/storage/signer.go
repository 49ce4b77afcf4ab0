package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("invalid download token")
	ErrTokenExpired = errors.New("download token expired")
)

// Grant is the content of a signed download token.
type Grant struct {
	SubjectID string
	Path      string
	ExpiresAt time.Time
}

// Signer issues HMAC-SHA256 download tokens of the form subject.exp.path.sig.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner builds a signer; ttl defaults to 24h.
func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Signer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL is the lifetime applied to new tokens.
func (s *Signer) TTL() time.Duration { return s.ttl }

// Sign creates a token for subjectID and the stored path.
func (s *Signer) Sign(subjectID, path string) (string, time.Time, error) {
	if subjectID == "" || path == "" {
		return "", time.Time{}, fmt.Errorf("subject and path required")
	}
	if strings.Contains(subjectID, ".") {
		return "", time.Time{}, fmt.Errorf("subject must not contain '.'")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).UTC()
	exp := strconv.FormatInt(expiresAt.Unix(), 10)
	encodedPath := base64.RawURLEncoding.EncodeToString([]byte(path))
	sig := s.sign(subjectID, exp, encodedPath)
	return strings.Join([]string{subjectID, exp, encodedPath, sig}, "."), time.Unix(expiresAt.Unix(), 0).UTC(), nil
}

// Verify checks the signature and, unless allowExpired, the expiry.
func (s *Signer) Verify(token string, allowExpired bool) (Grant, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return Grant{}, ErrInvalidToken
	}
	subjectID, exp, encodedPath, sig := parts[0], parts[1], parts[2], parts[3]
	if !hmac.Equal([]byte(s.sign(subjectID, exp, encodedPath)), []byte(sig)) {
		return Grant{}, ErrInvalidToken
	}
	rawPath, err := base64.RawURLEncoding.DecodeString(encodedPath)
	if err != nil {
		return Grant{}, ErrInvalidToken
	}
	expUnix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return Grant{}, ErrInvalidToken
	}
	grant := Grant{SubjectID: subjectID, Path: string(rawPath), ExpiresAt: time.Unix(expUnix, 0).UTC()}
	if !allowExpired && s.now().After(grant.ExpiresAt) {
		return grant, ErrTokenExpired
	}
	return grant, nil
}

func (s *Signer) sign(subjectID, exp, encodedPath string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(subjectID + "|" + exp + "|" + encodedPath))
	return hex.EncodeToString(mac.Sum(nil))
}
