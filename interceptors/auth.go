package interceptors

import (
	"context"
	"errors"
	"fmt"

	"github.com/glimte/relay-go/contracts"
	"github.com/glimte/relay-go/phase"
)

// ErrUnauthenticated is returned when no credentials match
var ErrUnauthenticated = errors.New("authentication: no valid credentials")

// HeaderAuthorization is the header carrying the caller's token
const HeaderAuthorization = "authorization"

const principalContextKey contextKey = "relay:security:principal"

// Principal is the authenticated caller of an exchange
type Principal struct {
	Name   string
	Roles  []string
	Claims map[string]string
}

// HasRole reports whether the principal carries a role
func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	return contains(p.Roles, role)
}

// Authenticator resolves the caller of a message
type Authenticator interface {
	Authenticate(ctx context.Context, msg *contracts.Message) (*Principal, error)
}

// AuthenticatorFunc is a function adapter for Authenticator
type AuthenticatorFunc func(ctx context.Context, msg *contracts.Message) (*Principal, error)

// Authenticate implements Authenticator
func (f AuthenticatorFunc) Authenticate(ctx context.Context, msg *contracts.Message) (*Principal, error) {
	return f(ctx, msg)
}

// StaticTokenAuthenticator maps bearer tokens in a header to principals
type StaticTokenAuthenticator struct {
	Header string
	Tokens map[string]*Principal
}

// Authenticate implements Authenticator
func (a *StaticTokenAuthenticator) Authenticate(ctx context.Context, msg *contracts.Message) (*Principal, error) {
	header := a.Header
	if header == "" {
		header = HeaderAuthorization
	}
	token := msg.Header(header)
	if token == "" {
		return nil, ErrUnauthenticated
	}
	principal, ok := a.Tokens[token]
	if !ok {
		return nil, ErrUnauthenticated
	}
	return principal, nil
}

// AuthenticationInterceptor authenticates the message and attaches the
// principal to the exchange. PrincipalBinder makes it visible to every later
// interceptor through the context.
type AuthenticationInterceptor struct {
	Base
	authenticator Authenticator
}

// NewAuthenticationInterceptor creates a new authentication interceptor
func NewAuthenticationInterceptor(authenticator Authenticator, opts ...Option) *AuthenticationInterceptor {
	return &AuthenticationInterceptor{
		Base:          newBase("AuthenticationInterceptor", phase.PreProtocol, opts),
		authenticator: authenticator,
	}
}

// HandleMessage implements Interceptor
func (i *AuthenticationInterceptor) HandleMessage(ctx context.Context, msg *contracts.Message) error {
	principal, err := i.authenticator.Authenticate(ctx, msg)
	if err != nil {
		return contracts.WrapFault(contracts.FaultClient, fmt.Errorf("message authentication failed: %w", err))
	}
	if ex := msg.Exchange(); ex != nil {
		contracts.Attach(ex, principal)
	}
	return nil
}

// PrincipalBinder re-binds the exchange principal into the context
var PrincipalBinder ContextBinder = ContextBinderFunc(func(ctx context.Context, msg *contracts.Message) context.Context {
	ex := msg.Exchange()
	if ex == nil {
		return ctx
	}
	principal, ok := contracts.Attached[*Principal](ex)
	if !ok || principal == nil {
		return ctx
	}
	return context.WithValue(ctx, principalContextKey, principal)
})

// PrincipalFromContext returns the authenticated principal, if any
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	principal, ok := ctx.Value(principalContextKey).(*Principal)
	return principal, ok
}
