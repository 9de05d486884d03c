package session

import (
	"github.com/jrsteele09/go-inventory-session/authapi"
	sesserrors "github.com/jrsteele09/go-inventory-session/internal/errors"
)

const (
	msgNetwork         = "Unable to reach the authentication service"
	msgBadCredentials  = "Invalid email or password"
	msgSessionExpired  = "Your session has expired"
	msgInvalidRequest  = "The request was invalid"
	msgStorage         = "Unable to save the session on this device"
	msgNotSignedIn     = "You are not signed in"
	msgNotInitialized  = "The session is still starting"
	msgRejectedGeneric = "The request was not authorized"
)

// userMessage turns an operation error into the text shown to the user.
func userMessage(err error, rejected string) string {
	detail := authapi.DetailOf(err)
	switch {
	case sesserrors.Is(err, sesserrors.ErrValidation):
		if detail != "" {
			return detail
		}
		return msgInvalidRequest
	case sesserrors.Is(err, sesserrors.ErrRejected):
		if detail != "" {
			return detail
		}
		return rejected
	case sesserrors.Is(err, sesserrors.ErrNetwork):
		return msgNetwork
	case sesserrors.Is(err, sesserrors.ErrStorage):
		return msgStorage
	case sesserrors.Is(err, sesserrors.ErrNotAuthenticated), sesserrors.Is(err, sesserrors.ErrNoRefreshToken):
		return msgNotSignedIn
	case sesserrors.Is(err, sesserrors.ErrNotInitialized):
		return msgNotInitialized
	default:
		return err.Error()
	}
}
