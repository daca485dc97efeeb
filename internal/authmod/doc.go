// Package authmod implements the module's entry points: authenticating
// a user with a one-time code and setting up (or replacing) a user's
// credentials. Both run entirely over the conversation bridge — the
// module never talks to a terminal or socket itself.
//
// # Authenticate
//
// Looks up the channel user's enrollment, prompts for a code, and
// validates it against the enrolled secret with replay protection at
// two levels: an in-memory guard keyed by matched time step, and the
// monotonic last-step column in the store, which also covers restarts.
// A recovery code is accepted in place of a TOTP code and is consumed
// on use. Outcomes are translated to the host taxonomy and audited.
//
// # SetCredentials
//
// Requires either an admin actor or a valid enrollment token for the
// channel user. Generates a fresh secret, shows the provisioning URI
// through the conversation, and activates the enrollment only after
// the user proves possession by entering a correct confirmation code.
// Until then the enrollment stays pending and does not authenticate.
//
// The module decides outcomes; the bridge only transports prompts.
// User-entered code buffers are wiped after validation, the same
// discipline the bridge applies to its response envelopes.
package authmod
