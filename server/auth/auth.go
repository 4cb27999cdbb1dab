package auth

import (
	"context"

	"github.com/google/uuid"
)

// LoginInfo is what a client claims about itself in its login packet.
type LoginInfo struct {
	Username string
	UUID     uuid.UUID
	ClientID int64
	Address  string
	Protocol int32
}

// Authenticator decides whether a login may enter the world. A rejection
// carries a reason shown to the client; err is reserved for failures of the
// authenticator itself.
type Authenticator interface {
	VerifyLogin(ctx context.Context, info LoginInfo) (accepted bool, reason string, err error)
}

// Func adapts a function to Authenticator.
type Func func(ctx context.Context, info LoginInfo) (bool, string, error)

func (f Func) VerifyLogin(ctx context.Context, info LoginInfo) (bool, string, error) {
	return f(ctx, info)
}

// Chain accepts a login only when every authenticator accepts it, stopping
// at the first rejection or error.
func Chain(auths ...Authenticator) Authenticator {
	return Func(func(ctx context.Context, info LoginInfo) (bool, string, error) {
		for _, a := range auths {
			ok, reason, err := a.VerifyLogin(ctx, info)
			if err != nil || !ok {
				return ok, reason, err
			}
		}
		return true, "", nil
	})
}
