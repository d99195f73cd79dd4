package errx

// Type categorizes an error for transport mapping and handling policy.
type Type string

const (
	// TypeInternal is an unexpected failure inside this service.
	TypeInternal Type = "INTERNAL"

	// TypeValidation is malformed caller input.
	TypeValidation Type = "VALIDATION"

	// TypeAuthorization is a missing or rejected credential.
	TypeAuthorization Type = "AUTHORIZATION"

	// TypeNotFound is a reference to a resource that does not exist.
	TypeNotFound Type = "NOT_FOUND"

	// TypeConflict is a state conflict with an existing resource.
	TypeConflict Type = "CONFLICT"

	// TypeBusiness is a domain rule violation.
	TypeBusiness Type = "BUSINESS"

	// TypeRateLimit is a caller exceeding a configured rate.
	TypeRateLimit Type = "RATE_LIMIT"

	// TypeExternal is a failure reported by an external collaborator.
	TypeExternal Type = "EXTERNAL"
)

func (t Type) String() string {
	return string(t)
}

// httpStatusFor maps an error type to its default HTTP status code.
func httpStatusFor(t Type) int {
	switch t {
	case TypeValidation:
		return 400
	case TypeAuthorization:
		return 401
	case TypeNotFound:
		return 404
	case TypeConflict:
		return 409
	case TypeBusiness:
		return 422
	case TypeRateLimit:
		return 429
	case TypeExternal:
		return 502
	default:
		return 500
	}
}
