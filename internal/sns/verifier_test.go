package sns

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"errors"
	"math/big"
	"testing"
	"time"
)

var errFetch = errors.New("cert fetch failed")

type staticCertSource struct {
	cert *x509.Certificate
	err  error
}

func (s *staticCertSource) Get(url string) (*x509.Certificate, error) {
	return s.cert, s.err
}

func newSigningFixture(t *testing.T) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "sns.amazonaws.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse cert: %v", err)
	}
	return key, cert
}

func sign(t *testing.T, key *rsa.PrivateKey, env *Envelope) {
	t.Helper()
	digest := sha1.Sum([]byte(buildSigningString(env)))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA1, digest[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	env.Signature = base64.StdEncoding.EncodeToString(sig)
}

func notificationEnvelope() *Envelope {
	return &Envelope{
		Type:             TypeNotification,
		MessageId:        "msg-1",
		TopicArn:         "arn:aws:sns:us-east-1:123456789012:ses-events",
		Message:          `{"notificationType":"Delivery"}`,
		Timestamp:        "2026-08-28T10:00:00.000Z",
		SignatureVersion: "1",
		SigningCertURL:   "https://sns.us-east-1.amazonaws.com/SimpleNotificationService-abc123.pem",
	}
}

func TestVerifyValidNotification(t *testing.T) {
	key, cert := newSigningFixture(t)
	v := NewVerifier(&staticCertSource{cert: cert})

	env := notificationEnvelope()
	sign(t, key, env)

	if !v.Verify(env) {
		t.Fatal("expected valid signature to verify")
	}
}

func TestVerifyValidSubscriptionConfirmation(t *testing.T) {
	key, cert := newSigningFixture(t)
	v := NewVerifier(&staticCertSource{cert: cert})

	env := &Envelope{
		Type:             TypeSubscriptionConfirmation,
		MessageId:        "msg-2",
		TopicArn:         "arn:aws:sns:us-east-1:123456789012:ses-events",
		Message:          "You have chosen to subscribe to the topic",
		SubscribeURL:     "https://sns.us-east-1.amazonaws.com/?Action=ConfirmSubscription",
		Token:            "tok-abc",
		Timestamp:        "2026-08-28T10:00:00.000Z",
		SignatureVersion: "1",
		SigningCertURL:   "https://sns.amazonaws.com/cert.pem",
	}
	sign(t, key, env)

	if !v.Verify(env) {
		t.Fatal("expected valid subscription signature to verify")
	}
}

func TestVerifyTamperedMessage(t *testing.T) {
	key, cert := newSigningFixture(t)
	v := NewVerifier(&staticCertSource{cert: cert})

	env := notificationEnvelope()
	sign(t, key, env)
	env.Message = `{"notificationType":"Bounce"}`

	if v.Verify(env) {
		t.Fatal("expected tampered message to fail verification")
	}
}

func TestVerifyWrongKey(t *testing.T) {
	key, _ := newSigningFixture(t)
	_, otherCert := newSigningFixture(t)
	v := NewVerifier(&staticCertSource{cert: otherCert})

	env := notificationEnvelope()
	sign(t, key, env)

	if v.Verify(env) {
		t.Fatal("expected signature from a different key to fail")
	}
}

func TestVerifyRejectsUnknownSignatureVersion(t *testing.T) {
	key, cert := newSigningFixture(t)
	v := NewVerifier(&staticCertSource{cert: cert})

	env := notificationEnvelope()
	sign(t, key, env)
	env.SignatureVersion = "2"

	if v.Verify(env) {
		t.Fatal("expected unknown signature version to be rejected")
	}
}

func TestVerifyRejectsBadBase64Signature(t *testing.T) {
	_, cert := newSigningFixture(t)
	v := NewVerifier(&staticCertSource{cert: cert})

	env := notificationEnvelope()
	env.Signature = "not base64!!!"

	if v.Verify(env) {
		t.Fatal("expected malformed signature encoding to be rejected")
	}
}

func TestVerifyRejectsCertFetchError(t *testing.T) {
	key, _ := newSigningFixture(t)
	v := NewVerifier(&staticCertSource{err: errFetch})

	env := notificationEnvelope()
	sign(t, key, env)

	if v.Verify(env) {
		t.Fatal("expected cert fetch failure to reject the message")
	}
}

func TestValidCertURL(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://sns.amazonaws.com/cert.pem", true},
		{"https://sns.us-east-1.amazonaws.com/cert.pem", true},
		{"https://sns.eu-west-2.amazonaws.com/SimpleNotificationService-abc.pem", true},
		{"http://sns.us-east-1.amazonaws.com/cert.pem", false},
		{"https://evil.example.com/cert.pem", false},
		{"https://sns.us-east-1.amazonaws.com.evil.example.com/cert.pem", false},
		{"https://evil-sns.amazonaws.com/cert.pem", false},
		{"https://s3.us-east-1.amazonaws.com/cert.pem", false},
		{"", false},
		{"://bad", false},
	}
	for _, tc := range cases {
		if got := validCertURL(tc.url); got != tc.want {
			t.Errorf("validCertURL(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestBuildSigningStringSkipsAbsentFields(t *testing.T) {
	env := notificationEnvelope()
	env.Subject = ""
	s := buildSigningString(env)

	want := "Message\n" + env.Message + "\n" +
		"MessageId\nmsg-1\n" +
		"Timestamp\n2026-08-28T10:00:00.000Z\n" +
		"TopicArn\n" + env.TopicArn + "\n" +
		"Type\nNotification\n"
	if s != want {
		t.Errorf("signing string mismatch:\ngot:  %q\nwant: %q", s, want)
	}
}
