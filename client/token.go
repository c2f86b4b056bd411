package client

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	apperrors "pagesync/pkg/errors"
)

// TokenProvider supplies the current credential for authenticating a
// connection. Token issuance itself is an external collaborator; the client
// only consumes this callback.
type TokenProvider func(ctx context.Context) (string, error)

// credentialSource wraps the injected provider in a circuit breaker so that a
// failing auth backend is not hammered on every reconnect attempt.
type credentialSource struct {
	provider TokenProvider
	breaker  *gobreaker.CircuitBreaker
}

func newCredentialSource(provider TokenProvider, logger *zap.Logger) *credentialSource {
	settings := gobreaker.Settings{
		Name:        "token-provider",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Credential breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &credentialSource{
		provider: provider,
		breaker:  gobreaker.NewCircuitBreaker(settings),
	}
}

// Token fetches a fresh credential through the breaker.
func (s *credentialSource) Token(ctx context.Context) (string, error) {
	token, err := s.breaker.Execute(func() (interface{}, error) {
		return s.provider(ctx)
	})
	if err != nil {
		return "", apperrors.Wrap(err, "failed to obtain credential")
	}
	return token.(string), nil
}
