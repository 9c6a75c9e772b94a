package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
)

// ReturnURLSigner builds the URL the provider redirects to after the merchant
// approves a charge. The URL is signed so the confirmation endpoint only
// accepts redirects this service issued.
type ReturnURLSigner struct {
	base   string
	secret []byte
}

func NewReturnURLSigner(base, secret string) *ReturnURLSigner {
	return &ReturnURLSigner{base: base, secret: []byte(secret)}
}

// Build returns base?user_id=..&plan_id=..&session_id=..&sig=..
func (s *ReturnURLSigner) Build(userID, planID int64, sessionID string) (string, error) {
	u, err := url.Parse(s.base)
	if err != nil {
		return "", fmt.Errorf("invalid billing return url: %w", err)
	}

	q := u.Query()
	q.Set("user_id", strconv.FormatInt(userID, 10))
	q.Set("plan_id", strconv.FormatInt(planID, 10))
	q.Set("session_id", sessionID)
	q.Set("sig", s.sign(userID, planID, sessionID))
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Verify checks a signature taken from a confirmation redirect.
func (s *ReturnURLSigner) Verify(userID, planID int64, sessionID, signature string) bool {
	if signature == "" || sessionID == "" {
		return false
	}
	expected, err := hex.DecodeString(s.sign(userID, planID, sessionID))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

func (s *ReturnURLSigner) sign(userID, planID int64, sessionID string) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%d:%d:%s", userID, planID, sessionID)
	return hex.EncodeToString(mac.Sum(nil))
}
