package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterceptBlocksTaintedArgument(t *testing.T) {
	r := NewRegistry()
	r.Register("hunter2", CategoryPassword, "sess-1")

	result := Intercept(r, "http_post", map[string]string{"body": "password=hunter2"}, "sess-1")
	assert.True(t, result.Block)
	assert.NotEmpty(t, result.Reasons)
}

func TestInterceptBlocksShellInjectionOnDangerousTool(t *testing.T) {
	r := NewRegistry()
	result := Intercept(r, "bash", map[string]string{"cmd": "ls; rm -rf /"}, "sess-1")
	assert.True(t, result.Block)
	assert.Equal(t, "critical", string(result.AuditEvents[0].Severity))
}

func TestInterceptAllowsCleanDangerousToolCall(t *testing.T) {
	r := NewRegistry()
	result := Intercept(r, "bash", map[string]string{"cmd": "ls -la"}, "sess-1")
	assert.False(t, result.Block)
}

func TestInterceptAllowsNonDangerousToolWithoutTaint(t *testing.T) {
	r := NewRegistry()
	result := Intercept(r, "search", map[string]string{"query": "weather today"}, "sess-1")
	assert.False(t, result.Block)
	assert.Empty(t, result.Reasons)
}
