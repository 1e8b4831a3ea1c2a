package channels

import (
	"crypto/sha256"
	"encoding/hex"
)

// FeishuAuth verifies Feishu (Lark) event callbacks: the signature is
// SHA256(timestamp + nonce + encrypt_key + body), hex-encoded.
type FeishuAuth struct {
	encryptKey string
}

func NewFeishuAuth(encryptKey string) *FeishuAuth {
	return &FeishuAuth{encryptKey: encryptKey}
}

func (a *FeishuAuth) ChannelName() string     { return "feishu" }
func (a *FeishuAuth) MaxTimestampAge() int64 { return defaultMaxTimestampAge }

func (a *FeishuAuth) VerifyRequest(headers map[string]string, body []byte, timestampNow int64) AuthOutcome {
	timestamp, ok := headers["x-lark-request-timestamp"]
	if !ok {
		return rejected("missing x-lark-request-timestamp")
	}
	nonce, ok := headers["x-lark-request-nonce"]
	if !ok {
		return rejected("missing x-lark-request-nonce")
	}
	signature, ok := headers["x-lark-signature"]
	if !ok {
		return rejected("missing x-lark-signature")
	}

	ts, ok := parseUnixSeconds(timestamp)
	if !ok {
		return rejected("invalid timestamp format")
	}
	if !withinReplayWindow(timestampNow, ts, a.MaxTimestampAge()) {
		return rejected("request timestamp too old")
	}

	content := timestamp + nonce + a.encryptKey + string(body)
	sum := sha256.Sum256([]byte(content))
	computed := hex.EncodeToString(sum[:])

	if computed != signature {
		return rejected("invalid signature")
	}
	return authenticated("feishu")
}
