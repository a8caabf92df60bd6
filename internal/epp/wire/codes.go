package wire

// EPP result codes used by the server, with the canonical message text
// from RFC 5730 §3. 1xxx codes complete the command; 2xxx codes fail it;
// 25xx codes additionally end the session.
const (
	CodeOK                  = 1000
	CodeOKPending           = 1001
	CodeNoMessages          = 1300
	CodeMessageAckToDequeue = 1301
	CodeOKEndingSession     = 1500

	CodeUnknownCommand      = 2000
	CodeSyntaxError         = 2001
	CodeUseError            = 2002
	CodeMissingParameter    = 2003
	CodeParameterRange      = 2004
	CodeParameterSyntax     = 2005
	CodeUnimplementedOption = 2102
	CodeUnimplemented       = 2101
	CodeAuthorizationError  = 2201
	CodeInvalidAuthInfo     = 2202
	CodeObjectPendingTransfer = 2300
	CodeObjectNotPendingTransfer = 2301
	CodeObjectExists        = 2302
	CodeObjectNotFound      = 2303
	CodeStatusProhibits     = 2304
	CodeAssociationProhibits = 2305
	CodeParameterPolicy     = 2306
	CodeCommandFailed       = 2400
)

var codeMessages = map[int]string{
	CodeOK:                  "Command completed successfully",
	CodeOKPending:           "Command completed successfully; action pending",
	CodeNoMessages:          "Command completed successfully; no messages",
	CodeMessageAckToDequeue: "Command completed successfully; ack to dequeue",
	CodeOKEndingSession:     "Command completed successfully; ending session",

	CodeUnknownCommand:      "Unknown command",
	CodeSyntaxError:         "Command syntax error",
	CodeUseError:            "Command use error",
	CodeMissingParameter:    "Required parameter missing",
	CodeParameterRange:      "Parameter value range error",
	CodeParameterSyntax:     "Parameter value syntax error",
	CodeUnimplemented:       "Unimplemented command",
	CodeUnimplementedOption: "Unimplemented option",
	CodeAuthorizationError:  "Authorization error",
	CodeInvalidAuthInfo:     "Invalid authorization information",
	CodeObjectPendingTransfer:    "Object pending transfer",
	CodeObjectNotPendingTransfer: "Object not pending transfer",
	CodeObjectExists:        "Object exists",
	CodeObjectNotFound:      "Object does not exist",
	CodeStatusProhibits:     "Object status prohibits operation",
	CodeAssociationProhibits: "Object association prohibits operation",
	CodeParameterPolicy:     "Parameter value policy error",
	CodeCommandFailed:       "Command failed",
}

// CodeMessage returns the canonical human-readable text for an EPP result
// code, falling back to the generic failure text for unknown codes.
func CodeMessage(code int) string {
	if msg, ok := codeMessages[code]; ok {
		return msg
	}
	return codeMessages[CodeCommandFailed]
}

// Success reports whether the code completes the command (1xxx range).
func Success(code int) bool { return code >= 1000 && code < 2000 }

// ClosesSession reports whether a response with this code must be followed
// by closing the connection.
func ClosesSession(code int) bool {
	return code == CodeOKEndingSession || code >= 2500
}
