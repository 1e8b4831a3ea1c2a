package privacy

import (
	"strings"
	"time"

	"github.com/arc-self/safeclaw-gateway/internal/audit"
)

// InterceptResult is the Tool Interceptor's verdict over one tool call.
type InterceptResult struct {
	Block       bool
	Reasons     []string
	AuditEvents []audit.Event
}

// shellMetacharacters flags argument strings that look like an attempt to
// smuggle shell control flow through a tool call.
var shellMetacharacters = []string{";", "&&", "||", "|", "$(", "`", ">", "<", "\n"}

// DefaultDangerousTools is the configurable deny list of tool names
// intercept treats as dangerous shell builtins regardless of arguments.
var DefaultDangerousTools = map[string]struct{}{
	"bash":       {},
	"sh":         {},
	"exec":       {},
	"powershell": {},
}

// Intercept blocks a tool call when its arguments contain a tainted
// literal, or when tool_name is a dangerous-shell builtin invoked with
// shell metacharacters in its arguments.
func Intercept(registry *Registry, toolName string, arguments map[string]string, sessionID string) InterceptResult {
	var reasons []string
	var events []audit.Event

	for _, v := range arguments {
		matches := registry.Contains(v)
		if len(matches) == 0 {
			continue
		}
		reasons = append(reasons, "argument contains tainted literal")
		events = append(events, audit.Event{
			Timestamp:   time.Now(),
			Severity:    audit.SeverityHigh,
			Vector:      audit.VectorTaintLeak,
			Description: "tool call argument to " + toolName + " contained a tainted literal",
			SessionID:   sessionID,
		})
		break
	}

	if _, dangerous := DefaultDangerousTools[toolName]; dangerous {
		for _, v := range arguments {
			if containsShellMetacharacter(v) {
				reasons = append(reasons, "shell metacharacter in dangerous tool argument")
				events = append(events, audit.Event{
					Timestamp:   time.Now(),
					Severity:    audit.SeverityCritical,
					Vector:      audit.VectorPolicyViolation,
					Description: "shell injection signal in call to " + toolName,
					SessionID:   sessionID,
				})
				break
			}
		}
	}

	return InterceptResult{
		Block:       len(reasons) > 0,
		Reasons:     reasons,
		AuditEvents: events,
	}
}

func containsShellMetacharacter(s string) bool {
	for _, m := range shellMetacharacters {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
