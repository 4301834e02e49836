package gateway

import (
	"context"
	"net/http"

	"github.com/autopeer-io/campustrack/internal/pkg/model"
	"github.com/autopeer-io/campustrack/internal/session"
)

var _ session.AuthAPI = (*Gateway)(nil)

func (g *Gateway) SignIn(ctx context.Context, usernameOrEmail, password string) (*model.AuthResponse, error) {
	var out model.AuthResponse
	err := g.do(ctx, call{
		Method: http.MethodPost,
		Route:  "/auth/signin",
		Body: map[string]string{
			"usernameOrEmail": usernameOrEmail,
			"password":        password,
		},
		Out:       &out,
		Anonymous: true,
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SignUp creates an account and returns the backend's confirmation message.
func (g *Gateway) SignUp(ctx context.Context, req model.RegisterRequest) (string, error) {
	var out model.MessageResponse
	if err := g.do(ctx, call{Method: http.MethodPost, Route: "/auth/signup", Body: req, Out: &out, Anonymous: true}); err != nil {
		return "", err
	}
	return out.Message, nil
}

func (g *Gateway) Me(ctx context.Context) (*model.User, error) {
	var out model.User
	if err := g.do(ctx, call{Method: http.MethodGet, Route: "/auth/me", Out: &out}); err != nil {
		return nil, err
	}
	return &out, nil
}
