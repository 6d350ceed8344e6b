package constants

// Gin context keys and HTTP headers.
const (
	ContextKeyUser      = "user"
	HeaderAuthorization = "Authorization"
	BearerPrefix        = "Bearer"
)

// Response envelope keys.
const (
	ResponseError = "error"
	FieldMessage  = "message"
	FieldData     = "data"
	FieldCode     = "code"
)
