package jwtx

import (
	"errors"
	"fmt"
)

// ErrInvalidToken is the only failure callers should branch on. Every
// verification failure wraps it so that malformed, expired, tampered and
// wrong-kind tokens are indistinguishable to the outside (no revocation or
// expiry oracle), while logs still carry the specific reason.
var ErrInvalidToken = errors.New("jwtx: invalid token")

var (
	ErrMalformed = fmt.Errorf("%w: malformed", ErrInvalidToken)
	ErrBadSig    = fmt.Errorf("%w: signature mismatch", ErrInvalidToken)
	ErrExpired   = fmt.Errorf("%w: expired", ErrInvalidToken)
	ErrWrongKind = fmt.Errorf("%w: wrong token kind", ErrInvalidToken)
)
