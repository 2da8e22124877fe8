/*
Package user contains the roster representation of a chat participant.

A User here is an immutable snapshot taken from the live registry, used when the roster
leaves the chat core: the ops API and tests.
*/
package user

import "time"

// User is a point-in-time view of one connected participant.
// Fields use JSON tags for serialization by the ops API.
type User struct {
	// ID is the session identifier assigned when the connection was admitted.
	ID string `json:"id"`

	// Nickname is the current display name (the transport address until /nick is used).
	Nickname string `json:"nickname"`

	// Address is the remote transport address of the connection.
	Address string `json:"address"`

	// Moderator reports whether the participant may /kick and /mod.
	Moderator bool `json:"moderator"`

	// ConnectedAt is when the participant was admitted.
	ConnectedAt time.Time `json:"connectedAt"`
}
