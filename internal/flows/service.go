package flows

import (
	"context"

	"github.com/MrEthical07/tokenauth/session"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Authenticate.Store != nil
}

func (s Service) Issue(ctx context.Context, p Principal, policy Policy) (*session.Session, error) {
	return RunIssueSession(ctx, p, policy, s.deps.Issue)
}

func (s Service) Authenticate(ctx context.Context, token string) AuthenticateResult {
	return RunAuthenticate(ctx, token, s.deps.Authenticate)
}

func (s Service) AuthenticateHeader(ctx context.Context, header string) AuthenticateResult {
	return RunAuthenticateHeader(ctx, header, s.deps.Authenticate)
}

func (s Service) Revoke(ctx context.Context, access string) error {
	return RunRevoke(ctx, access, s.deps.Revoke)
}

func (s Service) Login(ctx context.Context, req LoginRequest) (*session.Session, error) {
	return RunLogin(ctx, req, s.deps.Login)
}
