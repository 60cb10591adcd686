// Package channelauth implements the Channel-Auth Verifier (§4.2): HMAC-SHA256
// signing and verification of a client's claim to subscribe to a private or
// presence channel.
package channelauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/mwillis/notifd/internal/domain"
)

// Verifier signs and verifies channel-auth signatures, keyed by a shared
// app secret.
type Verifier struct {
	secret []byte
}

// New returns a Verifier keyed by appSecret.
func New(appSecret string) *Verifier {
	return &Verifier{secret: []byte(appSecret)}
}

// Sign produces the expected hex-encoded signature for a subscribe request.
// channelData is the raw JSON string the client would send; when absent for
// a Presence channel, the literal "{}" is substituted (this asymmetry with
// Verify is intentional — see the Open Questions note in SPEC_FULL.md).
func (v *Verifier) Sign(socketID, channel string, channelData *string) string {
	payload := v.signingPayload(socketID, channel, channelData, "{}")
	return v.digest(payload)
}

// Verify checks suppliedAuth against the expected signature for channel. For
// Public channels it always succeeds. For Private/Presence channels it fails
// if suppliedAuth is absent or does not match the computed digest.
func (v *Verifier) Verify(channel, socketID string, suppliedAuth, channelData *string) error {
	t := domain.ClassifyChannel(channel)
	if t == domain.Public {
		return nil
	}

	if suppliedAuth == nil {
		return fmt.Errorf("%w: missing auth for private/presence channel", domain.ErrAuth)
	}

	payload := v.signingPayload(socketID, channel, channelData, "")
	expected := v.digest(payload)

	if subtle.ConstantTimeCompare([]byte(expected), []byte(*suppliedAuth)) != 1 {
		return fmt.Errorf("%w: invalid auth signature", domain.ErrAuth)
	}
	return nil
}

// signingPayload builds the signing payload per §4.2: "socket_id:channel"
// for Private, "socket_id:channel:channel_data" for Presence. missingValue
// is substituted for channelData when it is nil, letting Sign and Verify
// each preserve their own (intentionally different) convention.
func (v *Verifier) signingPayload(socketID, channel string, channelData *string, missingValue string) string {
	t := domain.ClassifyChannel(channel)
	if t != domain.Presence {
		return socketID + ":" + channel
	}

	data := missingValue
	if channelData != nil {
		data = *channelData
	}
	return socketID + ":" + channel + ":" + data
}

func (v *Verifier) digest(payload string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
