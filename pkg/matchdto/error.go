package matchdto

// Error codes returned in ErrorResponse.Code.
const (
	CodeUnauthorized = "unauthorized"
	CodeBadRequest   = "bad_request"
	CodeValidation   = "validation_error"
	CodeNotFound     = "not_found"
	CodeProvisioning = "provisioning_error"
	CodePersistence  = "persistence_error"
	CodeInternal     = "internal_error"
)

type DomainError struct {
	Code      string
	Message   string
	Retryable bool
	Details   []string
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "match service error"
}

// Response renders e as the failure body.
func (e DomainError) Response() ErrorResponse {
	return ErrorResponse{Success: false, Error: e.Error(), Code: e.Code, Retryable: e.Retryable, Details: e.Details}
}
