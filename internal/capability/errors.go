package capability

import "fmt"

// ExternalServiceError is the uniform failure returned by data-source tools.
type ExternalServiceError struct {
	Service string
	Detail  string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	if e.Detail == "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.Detail)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }
