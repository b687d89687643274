package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Combine with NewSubSystemError for subsystem-specific codes.
var (
	ErrDuplicate        = fmt.Errorf("duplicate")
	ErrTimeout          = fmt.Errorf("operation timed out")
	ErrLimitReached     = fmt.Errorf("limit reached")
	ErrPermissionDenied = fmt.Errorf("permission denied")
	ErrInvalidInput     = fmt.Errorf("invalid input")
)

// Sentinel errors for the routing core.
var (
	ErrAgentNotFound       = fmt.Errorf("agent not found")
	ErrAgentCallFailed     = fmt.Errorf("agent call failed")
	ErrOrchestrationFailed = fmt.Errorf("orchestration failed")
	ErrCircuitOpen         = fmt.Errorf("agent circuit open")

	ErrConfigLoad  = fmt.Errorf("failed to load configuration")
	ErrDecryption  = fmt.Errorf("decryption failed")
	ErrEncryption  = fmt.Errorf("encryption operation failed")
	ErrThreadStore = fmt.Errorf("thread store operation failed")

	// Gateway / RPC errors.
	ErrAuthInvalid       = fmt.Errorf("authentication failed")
	ErrGatewayAuthFailed = fmt.Errorf("gateway: %w", ErrAuthInvalid)
	ErrRPCMethodNotFound = fmt.Errorf("rpc method not found")
	ErrRPCInvalidPayload = fmt.Errorf("rpc payload invalid")
	ErrRateLimit         = fmt.Errorf("rate limit exceeded")
)

// AgentNotFoundError reports that no agent is registered for a capability.
type AgentNotFoundError struct {
	Capability Capability
}

func (e *AgentNotFoundError) Error() string {
	return fmt.Sprintf("no agent registered for capability %q", e.Capability)
}

func (e *AgentNotFoundError) Unwrap() error { return ErrAgentNotFound }

// AgentCallError reports a failed HTTP call to an agent endpoint. StatusCode
// is zero for transport-level failures.
type AgentCallError struct {
	Agent      string
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *AgentCallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("agent %s: call failed with status %d: %v", e.Agent, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("agent %s: call failed: %v", e.Agent, e.Err)
}

func (e *AgentCallError) Unwrap() []error { return []error{ErrAgentCallFailed, e.Err} }

// OrchestrationError reports the workflow stage whose route call failed.
type OrchestrationError struct {
	Stage string
	Err   error
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("orchestration failed at %s: %v", e.Stage, e.Err)
}

func (e *OrchestrationError) Unwrap() []error { return []error{ErrOrchestrationFailed, e.Err} }

// StageOf returns the failed workflow stage carried by err, or "" if err is
// not an orchestration failure.
func StageOf(err error) string {
	var oe *OrchestrationError
	if errors.As(err, &oe) {
		return oe.Stage
	}
	return ""
}

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Registry.Register")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "registry", "threadstore"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category for monitoring and clients.
type ErrorCode string

const (
	CodeUnknown             ErrorCode = "UNKNOWN"
	CodeAgentNotFound       ErrorCode = "AGENT_NOT_FOUND"
	CodeAgentCallFailed     ErrorCode = "AGENT_CALL_FAILED"
	CodeOrchestrationFailed ErrorCode = "ORCHESTRATION_FAILED"
	CodeCircuitOpen         ErrorCode = "CIRCUIT_OPEN"
	CodeConfigLoad          ErrorCode = "CONFIG_LOAD"
	CodeEncryption          ErrorCode = "ENCRYPTION"
	CodeDecryption          ErrorCode = "DECRYPTION"
	CodeThreadStore         ErrorCode = "THREAD_STORE"
	CodeGatewayAuth         ErrorCode = "GATEWAY_AUTH"
	CodeRPCMethodNotFound   ErrorCode = "RPC_METHOD_NOT_FOUND"
	CodeRPCInvalidPayload   ErrorCode = "RPC_INVALID_PAYLOAD"
	CodeRateLimit           ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid         ErrorCode = "AUTH_INVALID"

	// Subsystem-specific codes resolved through subSystemCodeMap.
	CodeInvalidMessage    ErrorCode = "INVALID_MESSAGE"
	CodeInvalidDescriptor ErrorCode = "INVALID_DESCRIPTOR"
	CodeAgentTimeout      ErrorCode = "AGENT_TIMEOUT"

	// Category fallbacks.
	CodeDuplicate        ErrorCode = "DUPLICATE"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeLimitReached     ErrorCode = "LIMIT_REACHED"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
)

// codePriority lists sentinels from most to least specific. An orchestration
// failure also matches the agent error it wraps, so order decides.
var codePriority = []struct {
	err  error
	code ErrorCode
}{
	{ErrOrchestrationFailed, CodeOrchestrationFailed},
	{ErrAgentNotFound, CodeAgentNotFound},
	{ErrCircuitOpen, CodeCircuitOpen},
	{ErrAgentCallFailed, CodeAgentCallFailed},
	{ErrConfigLoad, CodeConfigLoad},
	{ErrDecryption, CodeDecryption},
	{ErrEncryption, CodeEncryption},
	{ErrThreadStore, CodeThreadStore},
	{ErrGatewayAuthFailed, CodeGatewayAuth},
	{ErrRPCMethodNotFound, CodeRPCMethodNotFound},
	{ErrRPCInvalidPayload, CodeRPCInvalidPayload},
	{ErrRateLimit, CodeRateLimit},
	{ErrAuthInvalid, CodeAuthInvalid},
	{ErrDuplicate, CodeDuplicate},
	{ErrTimeout, CodeTimeout},
	{ErrLimitReached, CodeLimitReached},
	{ErrPermissionDenied, CodePermissionDenied},
	{ErrInvalidInput, CodeInvalidInput},
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific codes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrInvalidInput: {
		"router":   CodeInvalidMessage,
		"registry": CodeInvalidDescriptor,
	},
	ErrTimeout: {
		"router": CodeAgentTimeout,
	},
}

// ErrorCodeOf returns the machine-parseable error code for err.
// DomainErrors with a SubSystem resolve through subSystemCodeMap first;
// otherwise the most specific sentinel in the chain wins.
// Returns CodeUnknown if no sentinel matches.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	var de *DomainError
	if errors.As(err, &de) && de.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[de.Err]; ok {
			if code, ok := subsysMap[de.SubSystem]; ok {
				return code
			}
		}
	}

	for _, p := range codePriority {
		if errors.Is(err, p.err) {
			return p.code
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e)
}
