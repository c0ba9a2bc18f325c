package errors

var (
	// Chat
	ErrEmptyMessage          = InvalidArg("message content cannot be empty")
	ErrSendInFlight          = FailedPrecondition("a message is already being sent")
	ErrConversationNotOpen   = NotFound("conversation is not open")
	ErrConversationNotFound  = NotFound("conversation not found")
	ErrInvalidParticipant    = InvalidArg("cannot start a conversation with this user")
	ErrSendTargetMissing     = NotFound("Conversation or user not found")
	ErrSendPermissionDenied  = Forbidden("Permission denied")
	ErrSendSchemaMismatch    = FailedPrecondition("Chat is out of date, please refresh")
	ErrSendFailed            = New(CodeUnavailable, "Failed to send message, please try again")
	ErrConversationForbidden = Forbidden("not a participant of this conversation")
	ErrChatBlocked           = Forbidden("cannot message a blocked user")

	// Connections
	ErrBlocked            = Forbidden("cannot connect with a blocked user")
	ErrRequestAlreadySent = AlreadyExists("Connection request already sent")
	ErrAlreadyConnected   = AlreadyExists("Already connected")
	ErrConnectionNotFound = NotFound("connection not found")
	ErrSelfConnection     = InvalidArg("cannot connect to yourself")

	// Notifications
	ErrNotificationNotFound = NotFound("notification not found")

	// Session
	ErrNotSignedIn = Unauthorized("no active session")
)
