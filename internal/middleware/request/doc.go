// Package request provides HTTP middleware for request identity and lifetime.
//
// WithRequestID propagates or generates an X-Request-ID; WithTimeout bounds
// the request context so everything dispatched on behalf of the request
// observes the deadline.
//
//	handler := request.WithRequestID(
//		request.WithTimeout(30*time.Second)(
//			yourHandler,
//		),
//	)
package request
