package sns

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ignite/mailtrace/internal/pkg/logger"
)

// Signing-string field order is fixed by the SNS protocol. Absent fields
// are skipped, present ones contribute "Name\nValue\n" in this order.
var (
	notificationFields = []string{"Message", "MessageId", "Subject", "Timestamp", "TopicArn", "Type"}
	subscriptionFields = []string{"Message", "MessageId", "SubscribeURL", "Timestamp", "Token", "TopicArn", "Type"}

	regionCertHost = regexp.MustCompile(`^sns\.[a-z0-9\-]+\.amazonaws\.com$`)
)

// Verifier authenticates SNS envelopes against the signing certificate
// referenced by SigningCertURL. Any failure anywhere in the path (bad
// URL, fetch error, parse error, signature mismatch) verifies as false;
// no error escapes to the caller.
type Verifier struct {
	certs CertSource
}

// NewVerifier creates a verifier that obtains certificates from the
// given source.
func NewVerifier(certs CertSource) *Verifier {
	return &Verifier{certs: certs}
}

// Verify checks the envelope signature. SNS still signs with the legacy
// SHA1-with-RSA scheme under SignatureVersion "1"; upgrading the digest
// here would break interop with the provider.
func (v *Verifier) Verify(env *Envelope) bool {
	if env == nil || env.SignatureVersion != "1" {
		return false
	}
	if !validCertURL(env.SigningCertURL) {
		logger.Warn("rejecting SNS message with disallowed cert URL", "url", env.SigningCertURL)
		return false
	}

	cert, err := v.certs.Get(env.SigningCertURL)
	if err != nil {
		logger.Error("failed to fetch SNS signing cert", "error", err)
		return false
	}

	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return false
	}

	signature, err := base64.StdEncoding.DecodeString(env.Signature)
	if err != nil {
		return false
	}

	digest := sha1.Sum([]byte(buildSigningString(env)))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA1, digest[:], signature); err != nil {
		logger.Warn("SNS signature verification failed", "message_id", env.MessageId)
		return false
	}
	return true
}

// validCertURL enforces the signer allow-list: https, and exactly
// sns.amazonaws.com or sns.<region>.amazonaws.com. Anything else would
// let an attacker point verification at their own certificate.
func validCertURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "https" {
		return false
	}
	host := u.Hostname()
	if !strings.HasSuffix(host, ".amazonaws.com") {
		return false
	}
	return host == "sns.amazonaws.com" || regionCertHost.MatchString(host)
}

func buildSigningString(env *Envelope) string {
	fields := subscriptionFields
	if env.Type == TypeNotification {
		fields = notificationFields
	}

	var b strings.Builder
	for _, name := range fields {
		val := envelopeField(env, name)
		if val == "" {
			continue
		}
		fmt.Fprintf(&b, "%s\n%s\n", name, val)
	}
	return b.String()
}

func envelopeField(env *Envelope, name string) string {
	switch name {
	case "Message":
		return env.Message
	case "MessageId":
		return env.MessageId
	case "Subject":
		return env.Subject
	case "SubscribeURL":
		return env.SubscribeURL
	case "Timestamp":
		return env.Timestamp
	case "Token":
		return env.Token
	case "TopicArn":
		return env.TopicArn
	case "Type":
		return env.Type
	}
	return ""
}
