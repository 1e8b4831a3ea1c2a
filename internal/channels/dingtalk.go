package channels

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// DingTalkAuth verifies HMAC-SHA256(secret, "{ts_ms}\n{secret}"),
// base64-encoded, against the "sign" header. DingTalk timestamps are
// milliseconds, unlike every other channel.
type DingTalkAuth struct {
	secret string
}

func NewDingTalkAuth(secret string) *DingTalkAuth {
	return &DingTalkAuth{secret: secret}
}

func (a *DingTalkAuth) ChannelName() string     { return "dingtalk" }
func (a *DingTalkAuth) MaxTimestampAge() int64 { return defaultMaxTimestampAge }

func (a *DingTalkAuth) VerifyRequest(headers map[string]string, body []byte, timestampNow int64) AuthOutcome {
	timestamp, ok := headers["timestamp"]
	if !ok {
		return rejected("missing timestamp header")
	}
	signature, ok := headers["sign"]
	if !ok {
		return rejected("missing sign header")
	}

	tsMs, ok := parseUnixSeconds(timestamp)
	if !ok {
		return rejected("invalid timestamp format")
	}
	ts := tsMs / 1000
	if !withinReplayWindow(timestampNow, ts, a.MaxTimestampAge()) {
		return rejected("request timestamp too old")
	}

	stringToSign := timestamp + "\n" + a.secret
	mac := hmac.New(sha256.New, []byte(a.secret))
	mac.Write([]byte(stringToSign))
	computed := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if computed != signature {
		return rejected("invalid signature")
	}
	return authenticated("dingtalk")
}
