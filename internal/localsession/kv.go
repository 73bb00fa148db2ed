// Package localsession persists the client-side session cache: a JSON blob
// holding the signed-in user, the access token, and the issue timestamp,
// valid for a fixed window and purged lazily on read.
package localsession

// KV is the client-local persistent storage collaborator: string keys to
// string values, scoped to the installation.
type KV interface {
	// Get returns the value under key and whether it was present.
	Get(key string) (string, bool, error)

	// Set writes value under key, overwriting any prior entry.
	Set(key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
}
