// Package smtpd implements a small implicit-TLS SMTP submission server that parses each
// accepted message and hands it to a transport. It backs local testing of the smtps
// transport and the mailsend sink command.
package smtpd

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/emersion/go-sasl"
)

// ErrAuthFailed is returned when credentials do not match.
var ErrAuthFailed = errors.New("authentication failed")

// Authenticator checks SMTP AUTH credentials against a single configured account.
type Authenticator struct {
	username string
	password string
}

// NewAuthenticator creates an Authenticator. Authentication is disabled unless both values
// are non-empty.
func NewAuthenticator(username, password string) *Authenticator {
	return &Authenticator{
		username: username,
		password: password,
	}
}

// Enabled reports whether credentials are configured.
func (a *Authenticator) Enabled() bool {
	return a.username != "" && a.password != ""
}

// VerifyPlain checks a base64 AUTH PLAIN response of the form authzid NUL authcid NUL passwd.
func (a *Authenticator) VerifyPlain(encoded string) error {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("invalid base64 encoding")
	}

	server := sasl.NewPlainServer(func(_, username, password string) error {
		return a.check(username, password)
	})
	if _, _, err := server.Next(decoded); err != nil {
		if errors.Is(err, ErrAuthFailed) {
			return err
		}
		return fmt.Errorf("invalid AUTH PLAIN format: %w", err)
	}
	return nil
}

// VerifyLogin checks the base64 username and password collected by the AUTH LOGIN exchange.
func (a *Authenticator) VerifyLogin(encodedUser, encodedPass string) error {
	user, err := base64.StdEncoding.DecodeString(encodedUser)
	if err != nil {
		return fmt.Errorf("invalid base64 username")
	}

	pass, err := base64.StdEncoding.DecodeString(encodedPass)
	if err != nil {
		return fmt.Errorf("invalid base64 password")
	}

	return a.check(string(user), string(pass))
}

func (a *Authenticator) check(username, password string) error {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
	if !userOK || !passOK {
		return ErrAuthFailed
	}
	return nil
}
