package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirewallAllowsWhitelistedHost(t *testing.T) {
	f := NewFirewall([]string{"api.example.com"})
	result := f.CheckURL("https://api.example.com/v1/data", "sess-1")
	assert.Equal(t, FirewallAllow, result.Decision)
	assert.Nil(t, result.AuditEvent)
}

func TestFirewallAllowsWildcardSuffix(t *testing.T) {
	f := NewFirewall([]string{".example.com"})
	result := f.CheckURL("https://sub.example.com/path", "sess-1")
	assert.Equal(t, FirewallAllow, result.Decision)
}

func TestFirewallBlocksNonWhitelistedHost(t *testing.T) {
	f := NewFirewall([]string{"api.example.com"})
	result := f.CheckURL("https://evil.attacker.net/exfil", "sess-1")
	assert.Equal(t, FirewallBlock, result.Decision)
	if result.AuditEvent == nil {
		t.Fatal("expected audit event on block")
	}
	assert.Equal(t, "network_exfil", string(result.AuditEvent.Vector))
}

func TestFirewallBlocksMalformedURL(t *testing.T) {
	f := NewFirewall(nil)
	result := f.CheckURL("://not-a-url", "sess-1")
	assert.Equal(t, FirewallBlock, result.Decision)
}

func TestFirewallWarnsOnWhitelistedIPLiteral(t *testing.T) {
	f := NewFirewall([]string{"10.0.0.5"})
	result := f.CheckURL("http://10.0.0.5/internal", "sess-1")
	assert.Equal(t, FirewallAllowWithWarning, result.Decision)
}
