// Package message defines the typed payload contracts exchanged between a
// sender and a receiver.
//
// A Message is an outbound request; a Response is its reply. Concrete types
// are plain structs supplied by the embedding application and registered in a
// protocol.Protocol under small integer IDs. Two reserved Response variants
// exist: EmptyResponse (the response equivalent of "no value") and
// ErrorResponse (synthesized by the receiver when handling fails, never
// returned by user handlers).
package message

// Message is the base contract for request payloads.
//
// Every concrete message declares the closed set of response types it can
// produce when handled. Messages with no particular response needs can embed
// EmptyOnly to get the default [EmptyResponse] declaration.
type Message interface {
	ResponseTypes() []Response
}

// Response is the base contract for reply payloads.
// Concrete responses embed ResponseBase to satisfy it.
type Response interface {
	responseMarker()
}

// ResponseBase is embedded by every concrete Response type.
// It carries no fields and adds nothing to the wire encoding.
type ResponseBase struct{}

func (ResponseBase) responseMarker() {}

// EmptyOnly provides the default response declaration for messages that
// produce no response value.
type EmptyOnly struct{}

// ResponseTypes declares EmptyResponse as the only possible reply.
func (EmptyOnly) ResponseTypes() []Response { return []Response{EmptyResponse{}} }

// ErrorType classifies an error that occurred in remote message handling.
type ErrorType int

const (
	// ErrorTypeOther is any failure not meant for end-user eyes.
	ErrorTypeOther ErrorType = 0
	// ErrorTypeClean is a user-facing failure whose text may be shown verbatim.
	ErrorTypeClean ErrorType = 1
)

// ErrorResponse reports that an error occurred on the remote end.
//
// This type is unique in that it is never returned to the caller; decoding
// one results in a local CleanError or RemoteError instead. Handlers must
// never construct it directly.
type ErrorResponse struct {
	ResponseBase
	ErrorMessage string    `json:"m" msgpack:"m"`
	ErrorType    ErrorType `json:"t" msgpack:"t"`
}

// EmptyResponse is the response equivalent of no value.
//
// Handlers that have nothing to report return nil; the receiver normalizes
// that to an EmptyResponse on the wire, and the sender translates it back to
// a nil response.
type EmptyResponse struct {
	ResponseBase
}
