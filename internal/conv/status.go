// ABOUTME: Translation of host framework result codes into the module's status taxonomy
// ABOUTME: The single place where the host's numeric code values are known

package conv

import "fmt"

// Host framework result codes. These are the framework's wire values;
// they appear here and nowhere else in the module.
const (
	CodeSuccess     = 0
	CodeAuthErr     = 7
	CodeUserUnknown = 10
	CodeConvErr     = 19
	CodeIgnore      = 25
)

// Kind classifies a host result into the module's local taxonomy.
type Kind int

const (
	// KindSuccess: the interaction completed.
	KindSuccess Kind = iota

	// KindAuthError: the host reports authentication failure.
	KindAuthError

	// KindUserUnknown: the host does not know the user.
	KindUserUnknown

	// KindIgnore: the module opts out of this authentication attempt.
	KindIgnore

	// KindConvUnavailable: no conversation capability is registered on
	// the channel. The callback was never invoked.
	KindConvUnavailable

	// KindCallbackFailure: the host's conversation callback declined
	// or failed the interaction.
	KindCallbackFailure

	// KindUnmapped: a host code outside the recognized set. The
	// original value is preserved in Status.Raw.
	KindUnmapped
)

// String returns the kind name for logs and errors.
func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindAuthError:
		return "auth_error"
	case KindUserUnknown:
		return "user_unknown"
	case KindIgnore:
		return "ignore"
	case KindConvUnavailable:
		return "conversation_unavailable"
	case KindCallbackFailure:
		return "callback_failure"
	case KindUnmapped:
		return "unmapped"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Status is the bridge's report of one conversation call. Raw always
// carries the host's original code so callers that talk back to the
// host can round-trip it; for KindUnmapped it is the only record of
// what the host actually said.
type Status struct {
	Kind Kind
	Raw  int
}

// Success reports whether the interaction completed.
func (s Status) Success() bool {
	return s.Kind == KindSuccess
}

// String renders the status for logs and errors.
func (s Status) String() string {
	if s.Kind == KindUnmapped {
		return fmt.Sprintf("unmapped(%d)", s.Raw)
	}
	return s.Kind.String()
}

// Translate classifies a raw host result code. Recognized codes map to
// their fixed kinds; everything else becomes KindUnmapped with the
// original value retained.
func Translate(code int) Status {
	st := Status{Raw: code}
	switch code {
	case CodeSuccess:
		st.Kind = KindSuccess
	case CodeAuthErr:
		st.Kind = KindAuthError
	case CodeUserUnknown:
		st.Kind = KindUserUnknown
	case CodeIgnore:
		st.Kind = KindIgnore
	case CodeConvErr:
		st.Kind = KindCallbackFailure
	default:
		st.Kind = KindUnmapped
	}
	return st
}

// Local builds a Status for a kind originating inside the module, with
// Raw set to the host code the kind corresponds to. Used by callers
// that decide an outcome without a conversation round.
func Local(k Kind) Status {
	switch k {
	case KindSuccess:
		return Status{Kind: k, Raw: CodeSuccess}
	case KindAuthError:
		return Status{Kind: k, Raw: CodeAuthErr}
	case KindUserUnknown:
		return Status{Kind: k, Raw: CodeUserUnknown}
	case KindIgnore:
		return Status{Kind: k, Raw: CodeIgnore}
	case KindConvUnavailable, KindCallbackFailure:
		return Status{Kind: k, Raw: CodeConvErr}
	default:
		return Status{Kind: k, Raw: CodeConvErr}
	}
}
