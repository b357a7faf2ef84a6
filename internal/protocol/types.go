package protocol

// Message types, SDK -> peer.
const (
	TypeAuthenticate = "authenticate"
	TypeAPICall      = "api_call"
)

// Message types, peer -> SDK.
const (
	TypeAuthSuccess = "auth_success"
	TypeAuthFailure = "auth_failure"
	TypeAPIResult   = "api_result"
)

// Wire field names.
const (
	FieldType           = "type"
	FieldToken          = "token"
	FieldAction         = "action"
	FieldPayload        = "payload"
	FieldRequestID      = "requestId"
	FieldReason         = "reason"
	FieldOriginalAction = "originalAction"
	FieldStatus         = "status"
	FieldResult         = "result"
	FieldError          = "error"
)

// api_result status values used by the reference launcher.
const (
	ResultStatusOK    = "ok"
	ResultStatusError = "error"
)
