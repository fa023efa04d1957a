package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Prefer these for new code and wrap them with DomainError
// to attach an operation and an ErrorKind.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrLimitReached  = fmt.Errorf("limit reached")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
	ErrConflict      = fmt.Errorf("conflict")
)

// Sentinel errors for the domain layer.
var (
	ErrToolNotFound    = fmt.Errorf("tool not found")
	ErrChatNotFound    = fmt.Errorf("chat not found")
	ErrConfigLoad      = fmt.Errorf("failed to load configuration")
	ErrDecryption      = fmt.Errorf("decryption failed")
	ErrEncryption      = fmt.Errorf("encryption operation failed")
	ErrStore           = fmt.Errorf("chat store operation failed")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrAuthMissing     = fmt.Errorf("authentication missing")
	ErrUpstreamFetch   = fmt.Errorf("upstream fetch failed")
	ErrAmbiguous       = fmt.Errorf("classification ambiguous")
	ErrMalformedTurn   = fmt.Errorf("malformed turn")
	ErrProviderNoReply = fmt.Errorf("provider returned no content")

	// Gateway / RPC errors.
	ErrGatewayAuthFailed = fmt.Errorf("gateway: %w", ErrAuthInvalid)
	ErrRPCInvalidPayload = fmt.Errorf("rpc payload invalid")
	ErrRPCMethodNotFound = fmt.Errorf("rpc method not found")
)

// ErrorKind classifies failures for presentation. Handlers turn a kind into the
// user-facing message; callers never need to inspect wrapped causes.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindAuthMissing
	KindUpstreamFetchFailed
	KindClassificationAmbiguous
	KindInvalidInput
	KindInternal
)

var kindNames = map[ErrorKind]string{
	KindUnknown:                 "unknown",
	KindAuthMissing:             "auth_missing",
	KindUpstreamFetchFailed:     "upstream_fetch_failed",
	KindClassificationAmbiguous: "classification_ambiguous",
	KindInvalidInput:            "invalid_input",
	KindInternal:                "internal",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string    // operation name (e.g., "Flattener.Flatten")
	Kind   ErrorKind // presentation category
	Err    error     // underlying sentinel or wrapped error
	Detail string    // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError. The kind is derived from err when
// it already carries one, otherwise it is KindUnknown.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Kind: KindOf(err), Err: err, Detail: detail}
}

// NewKindError creates a DomainError tagged with an explicit kind.
func NewKindError(kind ErrorKind, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Kind: kind, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// KindOf returns the ErrorKind of the outermost DomainError in err's chain
// that has one set. Bare sentinels map to their natural kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var de *DomainError
	for e := err; errors.As(e, &de); e = de.Err {
		if de.Kind != KindUnknown {
			return de.Kind
		}
		if de.Err == nil {
			break
		}
	}
	switch {
	case errors.Is(err, ErrAuthMissing):
		return KindAuthMissing
	case errors.Is(err, ErrUpstreamFetch):
		return KindUpstreamFetchFailed
	case errors.Is(err, ErrAmbiguous):
		return KindClassificationAmbiguous
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrToolNotFound):
		return KindInvalidInput
	}
	return KindUnknown
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTimeout)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeTimeout           ErrorCode = "TIMEOUT"
	CodeLimitReached      ErrorCode = "LIMIT_REACHED"
	CodeInvalidInput      ErrorCode = "INVALID_INPUT"
	CodeProviderError     ErrorCode = "PROVIDER_ERROR"
	CodeConflict          ErrorCode = "CONFLICT"
	CodeToolNotFound      ErrorCode = "TOOL_NOT_FOUND"
	CodeChatNotFound      ErrorCode = "CHAT_NOT_FOUND"
	CodeConfigLoad        ErrorCode = "CONFIG_LOAD"
	CodeDecryption        ErrorCode = "DECRYPTION"
	CodeEncryption        ErrorCode = "ENCRYPTION"
	CodeStore             ErrorCode = "STORE"
	CodeRateLimit         ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid       ErrorCode = "AUTH_INVALID"
	CodeAuthMissing       ErrorCode = "AUTH_MISSING"
	CodeUpstreamFetch     ErrorCode = "UPSTREAM_FETCH_FAILED"
	CodeAmbiguous         ErrorCode = "CLASSIFICATION_AMBIGUOUS"
	CodeMalformedTurn     ErrorCode = "MALFORMED_TURN"
	CodeProviderNoReply   ErrorCode = "PROVIDER_NO_REPLY"
	CodeGatewayAuth       ErrorCode = "GATEWAY_AUTH"
	CodeRPCInvalidPayload ErrorCode = "RPC_INVALID_PAYLOAD"
	CodeRPCMethodNotFound ErrorCode = "RPC_METHOD_NOT_FOUND"
)

// errorCodes maps sentinel errors to their machine-parseable codes. An error
// may wrap several sentinels, so ErrorCodeOf walks this list in order: more
// specific categories come before the causes they usually wrap.
var errorCodes = []struct {
	sentinel error
	code     ErrorCode
}{
	{ErrGatewayAuthFailed, CodeGatewayAuth},
	{ErrTimeout, CodeTimeout},
	{ErrUpstreamFetch, CodeUpstreamFetch},
	{ErrAmbiguous, CodeAmbiguous},
	{ErrAuthMissing, CodeAuthMissing},
	{ErrMalformedTurn, CodeMalformedTurn},
	{ErrProviderNoReply, CodeProviderNoReply},
	{ErrChatNotFound, CodeChatNotFound},
	{ErrToolNotFound, CodeToolNotFound},
	{ErrRPCInvalidPayload, CodeRPCInvalidPayload},
	{ErrRPCMethodNotFound, CodeRPCMethodNotFound},
	{ErrDecryption, CodeDecryption},
	{ErrEncryption, CodeEncryption},
	{ErrConfigLoad, CodeConfigLoad},
	{ErrLimitReached, CodeLimitReached},
	{ErrRateLimit, CodeRateLimit},
	{ErrAuthInvalid, CodeAuthInvalid},
	{ErrConflict, CodeConflict},
	{ErrStore, CodeStore},
	{ErrProviderError, CodeProviderError},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrNotFound, CodeNotFound},
}

// ErrorCodeOf returns the machine-parseable error code for the given error:
// the first entry of errorCodes that errors.Is matches. Returns CodeUnknown
// if no sentinel matches.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for _, e := range errorCodes {
		if errors.Is(err, e.sentinel) {
			return e.code
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
