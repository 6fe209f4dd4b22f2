package autohook

import (
	"github.com/goliatone/go-autohook/webhooks"
)

type ChallengeResponse = webhooks.ChallengeResponse

// ValidateWebhook answers a CRC challenge for hosts that serve the webhook
// route themselves.
func ValidateWebhook(crcToken, consumerSecret string) ChallengeResponse {
	return webhooks.ValidateWebhook(crcToken, consumerSecret)
}

// ValidateSignature checks the x-twitter-webhooks-signature header against
// rawBody. A missing header is an error; a mismatch is false.
func ValidateSignature(headers map[string]string, consumerSecret string, rawBody []byte) (bool, error) {
	return webhooks.ValidateSignature(headers, consumerSecret, rawBody)
}
