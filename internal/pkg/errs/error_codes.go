/*
Package errs provides custom error types and application-level error code constants.

These error codes identify the reasons a chat command or ops request was rejected,
both internally within the server and in the lines sent back to chat clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request body is not JSON.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the JSON body could not be decoded into the expected shape.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the body carried data after the JSON value.
	ErrExtraContentInBody = 1004
)

// 21xx: Validation Errors (malformed input to a state-mutating operation)
const (
	// ErrInvalidNickname indicates that a requested nickname is empty or not alphanumeric.
	ErrInvalidNickname = 2101

	// ErrInvalidDice indicates that a dice spec could not be parsed or is out of range.
	ErrInvalidDice = 2102

	// ErrInvalidArgs indicates that a command was invoked with missing or malformed arguments.
	ErrInvalidArgs = 2103

	// ErrSelfBlock indicates that a user tried to block themselves.
	ErrSelfBlock = 2104
)

// 22xx: Conflict Errors (requested state already taken or not reachable)
const (
	// ErrNicknameTaken indicates that another connected user already holds the nickname.
	ErrNicknameTaken = 2201

	// ErrAlreadyBlocked indicates that the target is already in the invoker's block set.
	ErrAlreadyBlocked = 2202

	// ErrNotBlocked indicates that the target is not in the invoker's block set.
	ErrNotBlocked = 2203
)

// 23xx: Lookup Errors
const (
	// ErrUserNotFound indicates that no connected user holds the requested nickname.
	ErrUserNotFound = 2301

	// ErrUnknownCommand indicates that the slash-command is not in the dispatch table.
	ErrUnknownCommand = 2302

	// ErrHelpNotFound indicates that /help was asked about a command that does not exist.
	ErrHelpNotFound = 2303
)

// 3xxx: Authorization Errors
const (
	// ErrNotModerator indicates that a privileged command was invoked by a non-moderator.
	ErrNotModerator = 3001
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000
)
