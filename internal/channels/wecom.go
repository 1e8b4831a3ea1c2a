package channels

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// WeComAuth verifies WeChat Work callbacks: SHA256 of the
// lexicographically sorted concatenation of {token, timestamp, nonce},
// hex-encoded, against "msg_signature".
type WeComAuth struct {
	token string
}

func NewWeComAuth(token string) *WeComAuth {
	return &WeComAuth{token: token}
}

func (a *WeComAuth) ChannelName() string     { return "wecom" }
func (a *WeComAuth) MaxTimestampAge() int64 { return defaultMaxTimestampAge }

func (a *WeComAuth) VerifyRequest(headers map[string]string, body []byte, timestampNow int64) AuthOutcome {
	timestamp, ok := headers["timestamp"]
	if !ok {
		return rejected("missing timestamp header")
	}
	nonce, ok := headers["nonce"]
	if !ok {
		return rejected("missing nonce header")
	}
	signature, ok := headers["msg_signature"]
	if !ok {
		return rejected("missing msg_signature header")
	}

	ts, ok := parseUnixSeconds(timestamp)
	if !ok {
		return rejected("invalid timestamp format")
	}
	if !withinReplayWindow(timestampNow, ts, a.MaxTimestampAge()) {
		return rejected("request timestamp too old")
	}

	parts := []string{a.token, timestamp, nonce}
	sort.Strings(parts)
	sum := sha256.Sum256([]byte(strings.Join(parts, "")))
	computed := hex.EncodeToString(sum[:])

	if computed != signature {
		return rejected("invalid signature")
	}
	return authenticated("wecom")
}
