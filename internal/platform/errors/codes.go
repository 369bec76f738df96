// Package errors provides structured error handling for command boundaries.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Validation errors
	CodeMinimumRecipientsRequired Code = "MINIMUM_RECIPIENTS_REQUIRED"
	CodeMaximumRecipientsExceeded Code = "MAXIMUM_RECIPIENTS_EXCEEDED"
	CodeMessageContentEmpty       Code = "MESSAGE_CONTENT_EMPTY"
	CodeMessageContentTooLong     Code = "MESSAGE_CONTENT_TOO_LONG"
	CodeTitleTooLong              Code = "TITLE_TOO_LONG"
	CodeUsernameInvalid           Code = "USERNAME_INVALID"
	CodePasswordTooWeak           Code = "PASSWORD_TOO_WEAK"
	CodePasswordTooLong           Code = "PASSWORD_TOO_LONG"
	CodeInvalidRequest            Code = "INVALID_REQUEST"

	// Not-found errors
	CodeConversationNotFound Code = "CONVERSATION_NOT_FOUND"
	CodeRecipientNotFound    Code = "RECIPIENT_NOT_FOUND"
	CodeUserNotFound         Code = "USER_NOT_FOUND"
	CodeNotFound             Code = "NOT_FOUND"

	// Authorization errors
	CodeNotConversationRecipient Code = "NOT_CONVERSATION_RECIPIENT"

	// Conflict errors
	CodeExistingDirectConversation    Code = "EXISTING_DIRECT_CONVERSATION"
	CodeRecipientAlreadyMember        Code = "RECIPIENT_ALREADY_CONVERSATION_MEMBER"
	CodeRecipientNotMember            Code = "RECIPIENT_NOT_CONVERSATION_MEMBER"
	CodeMinimumRecipientsAfterRemoval Code = "MINIMUM_RECIPIENTS_AFTER_REMOVAL"
	CodeUsernameTaken                 Code = "USERNAME_TAKEN"

	// Authentication errors
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeInvalidAuthToken   Code = "INVALID_AUTH_TOKEN"
	CodeExpiredAuthToken   Code = "EXPIRED_AUTH_TOKEN"

	// Internal errors
	CodeInternal Code = "INTERNAL"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - validation failures, bad input
	case CodeMinimumRecipientsRequired,
		CodeMaximumRecipientsExceeded,
		CodeMessageContentEmpty,
		CodeMessageContentTooLong,
		CodeTitleTooLong,
		CodeUsernameInvalid,
		CodePasswordTooWeak,
		CodePasswordTooLong,
		CodeInvalidRequest:
		return http.StatusBadRequest

	// Not found - a referenced entity does not exist
	case CodeConversationNotFound,
		CodeRecipientNotFound,
		CodeUserNotFound,
		CodeNotFound:
		return http.StatusNotFound

	// Forbidden - authenticated but not a member of the conversation
	case CodeNotConversationRecipient:
		return http.StatusForbidden

	// Conflict - business rule violations against current state
	case CodeExistingDirectConversation,
		CodeRecipientAlreadyMember,
		CodeRecipientNotMember,
		CodeMinimumRecipientsAfterRemoval,
		CodeUsernameTaken:
		return http.StatusConflict

	// Unauthorized - missing, invalid, or expired credentials
	case CodeInvalidCredentials,
		CodeInvalidAuthToken,
		CodeExpiredAuthToken:
		return http.StatusUnauthorized

	default:
		return http.StatusInternalServerError
	}
}
