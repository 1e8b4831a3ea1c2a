package privacy

import (
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/arc-self/safeclaw-gateway/internal/audit"
)

// FirewallDecision is the Network Firewall's verdict for one outbound URL.
type FirewallDecision int

const (
	FirewallAllow FirewallDecision = iota
	FirewallAllowWithWarning
	FirewallBlock
)

// FirewallResult pairs a decision with the audit event it produced, if
// any — Allow never emits one.
type FirewallResult struct {
	Decision   FirewallDecision
	AuditEvent *audit.Event
}

// Firewall is a default-deny network egress policy: a URL's host must
// match an entry in the whitelist (exact host or suffix match on a
// leading-dot entry) to be allowed.
type Firewall struct {
	whitelist []string
}

func NewFirewall(whitelist []string) *Firewall {
	return &Firewall{whitelist: whitelist}
}

// CheckURL classifies url against the whitelist. A malformed URL is
// treated as a block, not an error — the firewall never panics or
// silently allows on a parse failure.
func (f *Firewall) CheckURL(rawURL string, sessionID string) FirewallResult {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return FirewallResult{
			Decision: FirewallBlock,
			AuditEvent: &audit.Event{
				Timestamp:   time.Now(),
				Severity:    audit.SeverityHigh,
				Vector:      audit.VectorNetworkExfil,
				Description: "blocked malformed or host-less URL",
				SessionID:   sessionID,
			},
		}
	}

	host := strings.ToLower(parsed.Hostname())
	for _, allowed := range f.whitelist {
		allowed = strings.ToLower(allowed)
		if strings.HasPrefix(allowed, ".") {
			if strings.HasSuffix(host, allowed) || host == strings.TrimPrefix(allowed, ".") {
				return f.allowDecision(host)
			}
			continue
		}
		if host == allowed {
			return f.allowDecision(host)
		}
	}

	return FirewallResult{
		Decision: FirewallBlock,
		AuditEvent: &audit.Event{
			Timestamp:   time.Now(),
			Severity:    audit.SeverityHigh,
			Vector:      audit.VectorNetworkExfil,
			Description: "blocked egress to non-whitelisted host " + host,
			SessionID:   sessionID,
		},
	}
}

// allowDecision permits a whitelisted host, downgrading to
// AllowWithWarning when the host is a bare IP literal rather than a name —
// whitelisting an IP directly is unusual enough to flag without blocking.
func (f *Firewall) allowDecision(host string) FirewallResult {
	if net.ParseIP(host) != nil {
		return FirewallResult{Decision: FirewallAllowWithWarning}
	}
	return FirewallResult{Decision: FirewallAllow}
}
