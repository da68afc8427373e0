package draft

import "context"

// Store persists opaque draft payloads per console session and draft key.
type Store interface {
	// Get returns the payload and whether it exists.
	Get(ctx context.Context, sessionID, key string) (string, bool, error)
	// Put overwrites the payload for the key.
	Put(ctx context.Context, sessionID, key, payload string) error
	// Delete removes one key. Deleting a missing key is not an error.
	Delete(ctx context.Context, sessionID, key string) error
	// DeleteSession removes every key of the session.
	DeleteSession(ctx context.Context, sessionID string) error
}
