package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Registry.Register", ErrInvalidInput, "empty endpoint")
	want := "Registry.Register: empty endpoint: invalid input"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Config.Load", ErrConfigLoad, "")
	want := "Config.Load: failed to load configuration"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("Store.Append", ErrThreadStore, "disk full")
	if !errors.Is(err, ErrThreadStore) {
		t.Error("errors.Is should match ErrThreadStore")
	}
}

func TestAgentNotFoundError(t *testing.T) {
	err := fmt.Errorf("route: %w", &AgentNotFoundError{Capability: CapabilityCodeFix})

	assert.ErrorIs(t, err, ErrAgentNotFound)
	var nf *AgentNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, CapabilityCodeFix, nf.Capability)
	assert.Contains(t, err.Error(), `"code-fix"`)
}

func TestAgentCallError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &AgentCallError{Agent: "ui-gen-agent", Endpoint: "http://x", Err: cause}

	assert.ErrorIs(t, err, ErrAgentCallFailed)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "agent ui-gen-agent: call failed: connection refused", err.Error())

	withStatus := &AgentCallError{Agent: "a", StatusCode: 500, Err: errors.New("boom")}
	assert.Contains(t, withStatus.Error(), "status 500")
}

func TestOrchestrationError(t *testing.T) {
	call := &AgentCallError{Agent: "prompt-refine-agent", StatusCode: 500, Err: errors.New("internal")}
	err := &OrchestrationError{Stage: StagePromptRefine, Err: call}

	assert.ErrorIs(t, err, ErrOrchestrationFailed)
	assert.ErrorIs(t, err, ErrAgentCallFailed)

	var ce *AgentCallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 500, ce.StatusCode)
	assert.Equal(t, StagePromptRefine, StageOf(err))
	assert.Empty(t, StageOf(call))
}

// --- ErrorCode tests ---

func TestErrorCodeOf_DirectSentinel(t *testing.T) {
	assert.Equal(t, CodeAgentNotFound, ErrorCodeOf(ErrAgentNotFound))
	assert.Equal(t, CodeRateLimit, ErrorCodeOf(ErrRateLimit))
	assert.Equal(t, CodeInvalidInput, ErrorCodeOf(ErrInvalidInput))
}

func TestErrorCodeOf_Structured(t *testing.T) {
	nf := &AgentNotFoundError{Capability: CapabilityUIGen}
	call := &AgentCallError{Agent: "x", Err: errors.New("eof")}

	assert.Equal(t, CodeAgentNotFound, ErrorCodeOf(nf))
	assert.Equal(t, CodeAgentCallFailed, ErrorCodeOf(call))
	assert.Equal(t, CodeOrchestrationFailed, ErrorCodeOf(&OrchestrationError{Stage: StageUIGen, Err: call}))
	assert.Equal(t, CodeCircuitOpen, ErrorCodeOf(&AgentCallError{Agent: "x", Err: ErrCircuitOpen}))
}

func TestErrorCodeOf_WrappedError(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", ErrDecryption)
	assert.Equal(t, CodeDecryption, ErrorCodeOf(wrapped))
}

func TestErrorCodeOf_GatewayAuthBeforeAuthInvalid(t *testing.T) {
	assert.Equal(t, CodeGatewayAuth, ErrorCodeOf(ErrGatewayAuthFailed))
	assert.Equal(t, CodeAuthInvalid, ErrorCodeOf(ErrAuthInvalid))
}

func TestErrorCodeOf_UnknownError(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(fmt.Errorf("some random error")))
}

func TestErrorCodeOf_Nil(t *testing.T) {
	assert.Equal(t, CodeUnknown, ErrorCodeOf(nil))
}

func TestErrorCodeOf_SubSystem(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"router invalid", NewSubSystemError("router", "Router.Route", ErrInvalidInput, "empty thread id"), CodeInvalidMessage},
		{"registry invalid", NewSubSystemError("registry", "Registry.Register", ErrInvalidInput, "empty endpoint"), CodeInvalidDescriptor},
		{"router timeout", NewSubSystemError("router", "Router.Route", ErrTimeout, ""), CodeAgentTimeout},
		{"unknown subsystem falls back", NewSubSystemError("other", "Op", ErrInvalidInput, ""), CodeInvalidInput},
		{"wrapped", WrapOp("outer", NewSubSystemError("router", "Router.Route", ErrInvalidInput, "")), CodeInvalidMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCodeOf(tt.err))
		})
	}
}

func TestDomainError_Code(t *testing.T) {
	err := NewDomainError("Router.Route", ErrAgentNotFound, "code-fix")
	assert.Equal(t, CodeAgentNotFound, err.Code())

	custom := NewDomainError("Op", fmt.Errorf("custom"), "detail")
	assert.Equal(t, CodeUnknown, custom.Code())
}

func TestWrapOp(t *testing.T) {
	assert.NoError(t, WrapOp("op", nil))

	err := WrapOp("Store.Thread", ErrThreadStore)
	assert.ErrorIs(t, err, ErrThreadStore)
	assert.Equal(t, "Store.Thread: thread store operation failed", err.Error())
}
