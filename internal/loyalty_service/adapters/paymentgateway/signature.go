package paymentgateway

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/rewardhub/loyalty_services/internal/loyalty_service/domain"
)

// WebhookVerifier checks the two header schemes the gateway signs callbacks with:
// Authorization carries hex SHA256("username:password"); X-VERIFY carries
// hex SHA256(base64(body) + saltKey) + "###" + saltIndex.
type WebhookVerifier struct {
	Username  string
	Password  string
	SaltKey   string
	SaltIndex int
}

// Verify returns domain.ErrSignatureInvalid unless one configured scheme matches.
func (v WebhookVerifier) Verify(rawBody []byte, authorization, xVerify string) error {
	if authorization != "" && v.Username != "" {
		want := sha256Hex(v.Username + ":" + v.Password)
		got := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(authorization, "SHA256 ")))
		if constantTimeEqual(got, want) {
			return nil
		}
	}
	if xVerify != "" && v.SaltKey != "" {
		if constantTimeEqual(xVerify, v.XVerify(rawBody)) {
			return nil
		}
	}
	return domain.ErrSignatureInvalid
}

// XVerify computes the X-VERIFY header value for rawBody.
func (v WebhookVerifier) XVerify(rawBody []byte) string {
	return sha256Hex(base64.StdEncoding.EncodeToString(rawBody)+v.SaltKey) + "###" + strconv.Itoa(v.SaltIndex)
}

// AuthorizationHeader computes the Authorization header value the gateway sends.
func (v WebhookVerifier) AuthorizationHeader() string {
	return sha256Hex(v.Username + ":" + v.Password)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
