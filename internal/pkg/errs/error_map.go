/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
chat replies and HTTP responses.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// Messages containing a verb are formatted with the details passed to NewError.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Content-Type must be application/json.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Invalid JSON format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request body must contain a single JSON object.", Status: http.StatusBadRequest},

	// 21xx: Validation Errors
	ErrInvalidNickname: {Code: ErrInvalidNickname, Message: "Usernames must be alphanumeric."},
	ErrInvalidDice:     {Code: ErrInvalidDice, Message: "Dice must look like 2d6 (up to %d dice with up to %d sides)."},
	ErrInvalidArgs:     {Code: ErrInvalidArgs, Message: "Usage: %s"},
	ErrSelfBlock:       {Code: ErrSelfBlock, Message: "You cannot block yourself."},

	// 22xx: Conflict Errors
	ErrNicknameTaken:  {Code: ErrNicknameTaken, Message: "Sorry, someone is already named '%s'."},
	ErrAlreadyBlocked: {Code: ErrAlreadyBlocked, Message: "You have already blocked %s."},
	ErrNotBlocked:     {Code: ErrNotBlocked, Message: "You have not blocked %s."},

	// 23xx: Lookup Errors
	ErrUserNotFound:   {Code: ErrUserNotFound, Message: "Sorry, no one is named '%s'.", Status: http.StatusNotFound},
	ErrUnknownCommand: {Code: ErrUnknownCommand, Message: "'%s' is not a valid command."},
	ErrHelpNotFound:   {Code: ErrHelpNotFound, Message: "There is no command named '%s'."},

	// 3xxx: Authorization Errors
	ErrNotModerator: {Code: ErrNotModerator, Message: "You are not a moderator.", Status: http.StatusForbidden},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Sorry, something went wrong.", Status: http.StatusInternalServerError},
}
