package channels

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SlackAuth verifies X-Slack-Signature: HMAC-SHA256 over "v0:{ts}:{body}"
// with the app's signing secret, compared against "v0={hex}".
type SlackAuth struct {
	signingSecret string
}

func NewSlackAuth(signingSecret string) *SlackAuth {
	return &SlackAuth{signingSecret: signingSecret}
}

func (a *SlackAuth) ChannelName() string     { return "slack" }
func (a *SlackAuth) MaxTimestampAge() int64 { return defaultMaxTimestampAge }

func (a *SlackAuth) VerifyRequest(headers map[string]string, body []byte, timestampNow int64) AuthOutcome {
	timestamp, ok := headers["x-slack-request-timestamp"]
	if !ok {
		return rejected("missing x-slack-request-timestamp")
	}
	signature, ok := headers["x-slack-signature"]
	if !ok {
		return rejected("missing x-slack-signature")
	}

	ts, ok := parseUnixSeconds(timestamp)
	if !ok {
		return rejected("invalid timestamp format")
	}
	if !withinReplayWindow(timestampNow, ts, a.MaxTimestampAge()) {
		return rejected("request timestamp too old")
	}

	basestring := "v0:" + timestamp + ":" + string(body)
	mac := hmac.New(sha256.New, []byte(a.signingSecret))
	mac.Write([]byte(basestring))
	computed := "v0=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(computed), []byte(signature)) {
		return rejected("invalid signature")
	}
	return authenticated("slack")
}
