// Package governance holds the runtime safety controls of the validator: a per-client
// token bucket that admits validation requests, and the retry policy used when JSON-LD
// contexts are fetched from remote hosts.
package governance
