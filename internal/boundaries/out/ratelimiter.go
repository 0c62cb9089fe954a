package out

import "context"

// RequestThrottle paces outgoing registry requests.
type RequestThrottle interface {
	// Wait blocks until a request identified by key may be sent, or ctx ends.
	// Key is the registry host.
	Wait(ctx context.Context, key string) error
}
