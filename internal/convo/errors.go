package convo

import "errors"

// Caller-input and state errors. These surface verbatim and are never
// retried.
var (
	ErrConversationNotFound      = errors.New("conversation not found")
	ErrConversationClosed        = errors.New("conversation closed")
	ErrConversationAlreadyActive = errors.New("conversation already active for user")
	ErrTurnInProgress            = errors.New("turn already in progress")
	ErrEmptyMessage              = errors.New("message text is empty")
)

// ErrSynthesisFailed marks a turn whose reply generation failed. Partial
// streamed content, if any, is preserved before this surfaces.
var ErrSynthesisFailed = errors.New("reply synthesis failed")
