// ABOUTME: Conversation bridge between the module and the host framework's prompt callback
// ABOUTME: Sends one message per call and guarantees response secrets are wiped on every exit path

package conv

// Style identifies how the host should present a message. The values
// are the host framework's prompt category numbers and must not be
// renumbered.
type Style int

const (
	// StylePromptEchoOn asks the host to collect visible user input,
	// e.g. a verification code.
	StylePromptEchoOn Style = 2

	// StyleErrorMsg displays an error message. No response is expected.
	StyleErrorMsg Style = 3

	// StyleTextInfo displays an informational message. No response is
	// expected.
	StyleTextInfo Style = 4
)

// Message is a single prompt descriptor handed to the conversation
// capability. Built fresh for every call, never reused.
type Message struct {
	Style Style
	Text  string
}

// Response is the envelope a conversation may hand back for a message.
// Secret holds externally supplied bytes that may contain sensitive
// user input; callers holding a Response own its Secret until they
// Wipe it.
type Response struct {
	Secret []byte
}

// Wipe overwrites every byte of Secret with zero and drops the slice.
// Safe on a nil receiver and a nil Secret; idempotent.
func (r *Response) Wipe() {
	if r == nil || r.Secret == nil {
		return
	}
	for i := range r.Secret {
		r.Secret[i] = 0
	}
	r.Secret = nil
}

// Conversation is the host-registered callback through which messages
// reach the user. Implementations receive the whole batch and return
// the host result code plus one response slot per message; slots may
// be nil when no input was collected. The call may block indefinitely
// waiting for a human; the bridge imposes no timeout.
type Conversation interface {
	Converse(msgs []Message) (code int, resps []*Response)
}

// Channel is the opaque per-attempt session handle owned by the host
// framework. The bridge holds it only for the duration of one call.
type Channel interface {
	// User returns the account name under authentication.
	User() string

	// Conversation returns the registered conversation capability, or
	// nil when none is registered.
	Conversation() Conversation
}

// Send delivers one message through the channel's conversation
// capability and returns the translated status. Any responses the
// capability hands back are wiped and released before Send returns,
// regardless of the result code; their content is never examined.
func Send(ch Channel, style Style, text string) Status {
	c := capability(ch)
	if c == nil {
		return Status{Kind: KindConvUnavailable, Raw: CodeConvErr}
	}
	code, resps := c.Converse([]Message{{Style: style, Text: text}})
	defer wipeAll(resps)
	return Translate(code)
}

// Collect delivers one prompt and transfers ownership of the first
// collected secret to the caller. Every other response is wiped before
// Collect returns, and the returned secret must be wiped by the caller
// once it has served its purpose. On any non-success status the secret
// is nil and nothing is retained.
func Collect(ch Channel, style Style, text string) (secret []byte, st Status) {
	c := capability(ch)
	if c == nil {
		return nil, Status{Kind: KindConvUnavailable, Raw: CodeConvErr}
	}
	code, resps := c.Converse([]Message{{Style: style, Text: text}})
	defer wipeAll(resps)

	st = Translate(code)
	if st.Kind != KindSuccess {
		return nil, st
	}
	for _, r := range resps {
		if r != nil && r.Secret != nil {
			secret = r.Secret
			r.Secret = nil // ownership moved to the caller
			break
		}
	}
	return secret, st
}

// Prompt asks the host to collect visible user input.
func Prompt(ch Channel, text string) Status {
	return Send(ch, StylePromptEchoOn, text)
}

// ShowInfo displays an informational message.
func ShowInfo(ch Channel, text string) Status {
	return Send(ch, StyleTextInfo, text)
}

// ShowError displays an error message.
func ShowError(ch Channel, text string) Status {
	return Send(ch, StyleErrorMsg, text)
}

// capability resolves the conversation capability from the channel.
// Returns nil when the channel is absent or carries no capability.
func capability(ch Channel) Conversation {
	if ch == nil {
		return nil
	}
	return ch.Conversation()
}

func wipeAll(resps []*Response) {
	for _, r := range resps {
		r.Wipe()
	}
}
