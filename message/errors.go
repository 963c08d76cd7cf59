package message

// CleanError is a user-facing error. Its text is meant to be shown verbatim
// to the end user/caller on either side of the connection. When a handler
// returns one and the protocol preserves clean errors, the sender's Send
// fails with a CleanError carrying the same text.
type CleanError struct {
	Message string
}

func (e *CleanError) Error() string {
	return e.Message
}

// NewCleanError creates a CleanError with the given user-facing text.
func NewCleanError(text string) *CleanError {
	return &CleanError{Message: text}
}

// RemoteError reports that something went wrong on the other end of a
// message exchange. Detail depends on the remote protocol's trust settings:
// an untrusted sender only ever sees a fixed opaque text.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "remote error: " + e.Message
}
