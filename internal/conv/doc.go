// Package conv bridges the module to the host framework's conversation
// mechanism, the callback through which prompts reach the user and
// responses come back.
//
// # Contract
//
// The bridge sends exactly one message per call and never retries. The
// conversation capability is resolved fresh from the channel each time;
// an unregistered capability is a valid state reported as
// KindConvUnavailable, not an error condition.
//
// # Secret hygiene
//
// Responses may carry sensitive user input (a one-time code). The
// bridge wipes every secret byte before the envelope is released, on
// every exit path. Send discards responses entirely; Collect transfers
// ownership of the first secret to the caller, who inherits the same
// wipe obligation.
//
// # Status translation
//
// Host result codes are numeric and framework-defined. They cross into
// the rest of the module only through Translate, which classifies the
// four recognized outcomes plus the conversation-error code and
// preserves anything else as KindUnmapped without losing the original
// value. Nothing outside this package depends on the raw numbers.
//
// This layer never logs and never writes to any output channel except
// through the conversation capability itself.
package conv
