package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor (matches pkg/middleware/auth.go keys)
	FieldUserID   = "user_id"
	FieldEmail    = "email"
	FieldUsername = "username"

	// Live rooms
	FieldRoomID    = "room_id"
	FieldConnID    = "conn_id"
	FieldEventType = "event_type"
	FieldEventID   = "event_id"
	FieldTag       = "tag"

	// Service
	FieldService  = "service"
	FieldInstance = "instance_id"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
