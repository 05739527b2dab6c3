// Package settings is a persisted key/value store for operator-tunable
// system settings. Values are JSON; unknown keys read back their defaults
// so a fresh database behaves identically to one that was never tuned.
package settings
