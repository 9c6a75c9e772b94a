package billing

import "fmt"

// GatewayError is returned for every failure talking to the billing provider:
// transport errors, non-2xx answers and undecodable bodies.
type GatewayError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *GatewayError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("billing gateway %s: status %d: %s", e.Op, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("billing gateway %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("billing gateway %s failed", e.Op)
	}
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
