// ABOUTME: SSH keyboard-interactive adapter bridging ssh.ServerConfig into the conversation bridge
// ABOUTME: Maps message styles to challenge questions and answers back into response envelopes

package sshgate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/parallaxsec/otpgate/internal/conv"
)

// Authenticator runs the verification conversation for a channel.
type Authenticator interface {
	Authenticate(ctx context.Context, ch conv.Channel) conv.Status
}

// challengeConv adapts an ssh.KeyboardInteractiveChallenge to the
// bridge's Conversation interface. Prompts become questions with echo
// enabled; info and error texts travel in the instruction field, which
// clients display above the questions.
type challengeConv struct {
	user      string
	challenge ssh.KeyboardInteractiveChallenge
}

func (c *challengeConv) Converse(msgs []conv.Message) (int, []*conv.Response) {
	var questions []string
	var echos []bool
	var instruction []string
	for _, m := range msgs {
		switch m.Style {
		case conv.StylePromptEchoOn:
			questions = append(questions, m.Text)
			echos = append(echos, true)
		default:
			instruction = append(instruction, m.Text)
		}
	}

	answers, err := c.challenge(c.user, strings.Join(instruction, "\n"), questions, echos)
	if err != nil {
		return conv.CodeConvErr, nil
	}
	if len(answers) != len(questions) {
		return conv.CodeConvErr, nil
	}

	resps := make([]*conv.Response, len(msgs))
	next := 0
	for i, m := range msgs {
		if m.Style != conv.StylePromptEchoOn {
			continue
		}
		resps[i] = &conv.Response{Secret: []byte(answers[next])}
		next++
	}
	return conv.CodeSuccess, resps
}

type channel struct {
	user string
	c    *challengeConv
}

func (ch *channel) User() string { return ch.user }

func (ch *channel) Conversation() conv.Conversation { return ch.c }

// NewChannel builds a bridge channel for one SSH connection.
func NewChannel(user string, challenge ssh.KeyboardInteractiveChallenge) conv.Channel {
	return &channel{
		user: user,
		c:    &challengeConv{user: user, challenge: challenge},
	}
}

// Gateway gates SSH keyboard-interactive logins on the authentication
// module.
type Gateway struct {
	auth   Authenticator
	logger *slog.Logger
}

// NewGateway creates a Gateway over the given authenticator.
func NewGateway(auth Authenticator, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		auth:   auth,
		logger: logger.With("component", "sshgate"),
	}
}

// Callback returns an ssh.ServerConfig-compatible
// KeyboardInteractiveCallback.
//
// Usage:
//
//	serverConfig.KeyboardInteractiveCallback = gw.Callback()
//
// Failures return an opaque error so the response never reveals
// whether the user is enrolled.
func (g *Gateway) Callback() func(ssh.ConnMetadata, ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
	return func(meta ssh.ConnMetadata, challenge ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
		ch := NewChannel(meta.User(), challenge)
		st := g.auth.Authenticate(context.Background(), ch)
		if st.Success() {
			g.logger.Info("authenticated", "user", meta.User(), "remote", meta.RemoteAddr())
			return nil, nil
		}

		g.logger.Warn("access denied", "user", meta.User(), "remote", meta.RemoteAddr(), "status", st.String())
		return nil, fmt.Errorf("access denied")
	}
}

// ServerConfig builds an ssh.ServerConfig that accepts
// keyboard-interactive authentication only, gated by the module.
func (g *Gateway) ServerConfig(hostKey ssh.Signer) *ssh.ServerConfig {
	cfg := &ssh.ServerConfig{
		KeyboardInteractiveCallback: g.Callback(),
	}
	cfg.AddHostKey(hostKey)
	return cfg
}
