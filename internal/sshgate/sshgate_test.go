// ABOUTME: Tests for the SSH keyboard-interactive adapter
// ABOUTME: Covers style mapping, challenge failures, and the server callback

package sshgate

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/parallaxsec/otpgate/internal/conv"
)

// recordingChallenge captures what the adapter sends and replies with
// scripted answers.
type recordingChallenge struct {
	name        string
	instruction string
	questions   []string
	echos       []bool

	answers []string
	err     error
}

func (r *recordingChallenge) fn() ssh.KeyboardInteractiveChallenge {
	return func(name, instruction string, questions []string, echos []bool) ([]string, error) {
		r.name = name
		r.instruction = instruction
		r.questions = questions
		r.echos = echos
		if r.err != nil {
			return nil, r.err
		}
		return r.answers, nil
	}
}

func TestConversePrompt(t *testing.T) {
	rc := &recordingChallenge{answers: []string{"123456"}}
	ch := NewChannel("alice", rc.fn())

	code, resps := ch.Conversation().Converse([]conv.Message{
		{Style: conv.StylePromptEchoOn, Text: "Verification code: "},
	})

	assert.Equal(t, conv.CodeSuccess, code)
	require.Len(t, resps, 1)
	require.NotNil(t, resps[0])
	assert.Equal(t, []byte("123456"), resps[0].Secret)

	assert.Equal(t, "alice", rc.name)
	assert.Equal(t, []string{"Verification code: "}, rc.questions)
	assert.Equal(t, []bool{true}, rc.echos)
}

func TestConverseInfoAndError(t *testing.T) {
	for _, style := range []conv.Style{conv.StyleTextInfo, conv.StyleErrorMsg} {
		rc := &recordingChallenge{}
		ch := NewChannel("alice", rc.fn())

		code, resps := ch.Conversation().Converse([]conv.Message{
			{Style: style, Text: "something happened"},
		})

		assert.Equal(t, conv.CodeSuccess, code)
		require.Len(t, resps, 1)
		assert.Nil(t, resps[0], "display-only messages get no response envelope")
		assert.Equal(t, "something happened", rc.instruction)
		assert.Empty(t, rc.questions)
	}
}

func TestConverseChallengeError(t *testing.T) {
	rc := &recordingChallenge{err: errors.New("connection closed")}
	ch := NewChannel("alice", rc.fn())

	code, resps := ch.Conversation().Converse([]conv.Message{
		{Style: conv.StylePromptEchoOn, Text: "Verification code: "},
	})

	assert.Equal(t, conv.CodeConvErr, code)
	assert.Nil(t, resps)
}

func TestConverseAnswerCountMismatch(t *testing.T) {
	rc := &recordingChallenge{answers: []string{}}
	ch := NewChannel("alice", rc.fn())

	code, resps := ch.Conversation().Converse([]conv.Message{
		{Style: conv.StylePromptEchoOn, Text: "Verification code: "},
	})

	assert.Equal(t, conv.CodeConvErr, code)
	assert.Nil(t, resps)
}

// stubAuth returns a fixed status and records the channel it saw.
type stubAuth struct {
	status conv.Status
	user   string
}

func (s *stubAuth) Authenticate(_ context.Context, ch conv.Channel) conv.Status {
	if ch != nil {
		s.user = ch.User()
	}
	return s.status
}

type fakeMeta struct{ user string }

func (f fakeMeta) User() string          { return f.user }
func (f fakeMeta) SessionID() []byte     { return nil }
func (f fakeMeta) ClientVersion() []byte { return nil }
func (f fakeMeta) ServerVersion() []byte { return nil }
func (f fakeMeta) RemoteAddr() net.Addr  { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 2222} }
func (f fakeMeta) LocalAddr() net.Addr   { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 22} }

func TestCallbackAllowsSuccess(t *testing.T) {
	auth := &stubAuth{status: conv.Local(conv.KindSuccess)}
	gw := NewGateway(auth, nil)

	rc := &recordingChallenge{answers: []string{"123456"}}
	perms, err := gw.Callback()(fakeMeta{user: "alice"}, rc.fn())

	assert.NoError(t, err)
	assert.Nil(t, perms)
	assert.Equal(t, "alice", auth.user)
}

func TestCallbackDeniesFailure(t *testing.T) {
	for _, kind := range []conv.Kind{
		conv.KindAuthError,
		conv.KindUserUnknown,
		conv.KindIgnore,
		conv.KindConvUnavailable,
	} {
		auth := &stubAuth{status: conv.Local(kind)}
		gw := NewGateway(auth, nil)

		rc := &recordingChallenge{}
		perms, err := gw.Callback()(fakeMeta{user: "alice"}, rc.fn())

		require.Error(t, err)
		assert.Nil(t, perms)
		// The error must not leak the reason.
		assert.Equal(t, "access denied", err.Error())
	}
}
