// Package service implements the account, app and chat history use cases on
// top of the repositories. Every identity-bearing call takes the caller's
// session explicitly.
package service

import (
	"context"

	"appforge/internal/models"
	"appforge/internal/observability"
	"appforge/internal/session"
)

// LoginResolver resolves the user bound to a session.
type LoginResolver func(ctx context.Context, sess *session.Session) (*models.User, error)

var serviceLog = observability.NewStructuredLogger()

// traced runs fn inside a service span and logs failures that are not caller errors.
func traced[T any](ctx context.Context, service, method string, fn func(context.Context) (T, error)) (T, error) {
	span, ctx := observability.StartServiceSpan(ctx, service, method)
	defer span.End()
	serviceLog.LogServiceCall(ctx, service, method, nil)

	out, err := fn(ctx)
	if err != nil {
		span.SetError(err)
		if !isCallerError(err) {
			serviceLog.LogServiceError(ctx, service, method, err)
		}
	}
	return out, err
}

func isCallerError(err error) bool {
	for _, code := range []string{models.CodeParams, models.CodeNotLogin, models.CodeNoAuth, models.CodeNotFound} {
		if models.HasCode(err, code) {
			return true
		}
	}
	return false
}

// requireAdmin returns the logged-in user when it holds the admin role.
func requireAdmin(ctx context.Context, login LoginResolver, sess *session.Session) (*models.User, error) {
	user, err := login(ctx, sess)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin() {
		return nil, models.NewNoAuthError()
	}
	return user, nil
}
