package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidToken covers malformed and tampered download tokens.
	ErrInvalidToken = errors.New("invalid download token")
	// ErrExpiredToken is returned for well-formed tokens past their expiry.
	ErrExpiredToken = errors.New("download token expired")
)

// DownloadClaims is the information carried by a download token.
type DownloadClaims struct {
	JobID     string
	File      string
	ExpiresAt time.Time
}

// SignedURLSigner issues HMAC-SHA256 tokens binding a report job to its
// stored file. Tokens have the form base64url(payload).base64url(mac).
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner builds a signer. A non-positive ttl defaults to 24h.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign returns a token for file and the instant it stops being valid.
func (s *SignedURLSigner) Sign(jobID, file string) (string, time.Time, error) {
	if jobID == "" || file == "" {
		return "", time.Time{}, errors.New("job id and file are required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, errors.New("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	payload := strings.Join([]string{jobID, strconv.FormatInt(expiresAt.Unix(), 10), file}, "\n")
	token := encode([]byte(payload)) + "." + encode(s.mac(payload))
	return token, expiresAt, nil
}

// Verify checks the token signature and, unless allowExpired is set, its
// expiry. Cleanup uses allowExpired to locate files behind stale tokens.
func (s *SignedURLSigner) Verify(token string, allowExpired bool) (DownloadClaims, error) {
	rawPayload, rawMAC, ok := strings.Cut(token, ".")
	if !ok {
		return DownloadClaims{}, ErrInvalidToken
	}
	payload, err := base64.RawURLEncoding.DecodeString(rawPayload)
	if err != nil {
		return DownloadClaims{}, ErrInvalidToken
	}
	mac, err := base64.RawURLEncoding.DecodeString(rawMAC)
	if err != nil || !hmac.Equal(mac, s.mac(string(payload))) {
		return DownloadClaims{}, ErrInvalidToken
	}

	parts := strings.SplitN(string(payload), "\n", 3)
	if len(parts) != 3 {
		return DownloadClaims{}, ErrInvalidToken
	}
	unix, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return DownloadClaims{}, ErrInvalidToken
	}
	claims := DownloadClaims{JobID: parts[0], File: parts[2], ExpiresAt: time.Unix(unix, 0)}
	if !allowExpired && s.now().After(claims.ExpiresAt) {
		return claims, ErrExpiredToken
	}
	return claims, nil
}

func (s *SignedURLSigner) mac(payload string) []byte {
	h := hmac.New(sha256.New, s.secret)
	_, _ = h.Write([]byte(payload))
	return h.Sum(nil)
}

func encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
