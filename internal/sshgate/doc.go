// ABOUTME: Package documentation for the sshgate package
// ABOUTME: Explains how SSH keyboard-interactive maps onto the conversation bridge

// Package sshgate adapts SSH keyboard-interactive authentication to
// the conversation bridge so an ssh.ServerConfig can act as the host
// framework for the authentication module.
//
// Each SSH connection becomes a bridge channel: the connection's
// username is the channel user, and the keyboard-interactive challenge
// function is its conversation. Prompt messages turn into challenge
// questions with echo enabled, informational and error texts travel in
// the instruction field, and answers come back as response envelopes
// whose secret bytes the bridge wipes after use. A failed challenge
// maps to the host conversation-error code.
package sshgate
