// Package sns handles the outer AWS SNS message envelope: parsing,
// signature verification against the signing certificate, and the
// one-time subscription confirmation handshake.
package sns

import "encoding/json"

// Message type discriminators used by SNS.
const (
	TypeNotification             = "Notification"
	TypeSubscriptionConfirmation = "SubscriptionConfirmation"
	TypeUnsubscribeConfirmation  = "UnsubscribeConfirmation"
)

// Envelope is the outer signed message SNS posts to the webhook. The
// inner, provider-specific notification travels as JSON inside Message.
// All fields are plain strings; anything shape-dependent is normalized
// here so downstream code never branches on field shape.
type Envelope struct {
	Type             string `json:"Type"`
	MessageId        string `json:"MessageId"`
	TopicArn         string `json:"TopicArn"`
	Subject          string `json:"Subject"`
	Message          string `json:"Message"`
	Timestamp        string `json:"Timestamp"`
	SignatureVersion string `json:"SignatureVersion"`
	Signature        string `json:"Signature"`
	SigningCertURL   string `json:"SigningCertURL"`
	SubscribeURL     string `json:"SubscribeURL"`
	Token            string `json:"Token"`
	UnsubscribeURL   string `json:"UnsubscribeURL"`
}

// ParseEnvelope decodes the raw webhook body into an Envelope.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
