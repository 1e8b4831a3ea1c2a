package channels

import (
	"crypto/ed25519"
	"encoding/hex"
)

// DiscordAuth verifies interaction webhooks: Ed25519 signature over
// timestamp∥body, against the application's public key.
type DiscordAuth struct {
	publicKey string // 64 hex chars
}

func NewDiscordAuth(publicKey string) *DiscordAuth {
	return &DiscordAuth{publicKey: publicKey}
}

func (a *DiscordAuth) ChannelName() string     { return "discord" }
func (a *DiscordAuth) MaxTimestampAge() int64 { return defaultMaxTimestampAge }

func (a *DiscordAuth) VerifyRequest(headers map[string]string, body []byte, timestampNow int64) AuthOutcome {
	signature, ok := headers["x-signature-ed25519"]
	if !ok {
		return rejected("missing x-signature-ed25519")
	}
	timestamp, ok := headers["x-signature-timestamp"]
	if !ok {
		return rejected("missing x-signature-timestamp")
	}

	ts, ok := parseUnixSeconds(timestamp)
	if !ok {
		return rejected("invalid timestamp format")
	}
	if !withinReplayWindow(timestampNow, ts, a.MaxTimestampAge()) {
		return rejected("request timestamp too old")
	}

	if len(signature) != 128 || len(a.publicKey) != 64 {
		return rejected("invalid signature or public key length")
	}

	sigBytes, err := hex.DecodeString(signature)
	if err != nil {
		return rejected("invalid signature or public key length")
	}
	pubBytes, err := hex.DecodeString(a.publicKey)
	if err != nil {
		return rejected("invalid signature or public key length")
	}

	message := append([]byte(timestamp), body...)
	if !ed25519.Verify(ed25519.PublicKey(pubBytes), message, sigBytes) {
		return rejected("invalid signature")
	}
	return authenticated("discord")
}
