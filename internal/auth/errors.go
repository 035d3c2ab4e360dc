package auth

import "errors"

// ErrMalformedHeader is returned for Authorization headers that are not of
// the form "Bearer <token>".
var ErrMalformedHeader = errors.New("malformed authorization header")
