// Package idp talks to the hosted identity provider: it sends invitations,
// reads user profiles over the provider's management API, and verifies the
// session tokens the provider mints for signed-in users.
//
// The provider is the source of truth for authentication only. Authorization
// and profile data live in the local database; this package is the one place
// that crosses the boundary.
package idp
