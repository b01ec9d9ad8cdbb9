package profile

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-admin-console/api"
	"github.com/jrsteele09/go-admin-console/internal/utils"
	"github.com/jrsteele09/go-admin-console/session"
	"github.com/pkg/errors"
)

// Service reads and completes the visitor's profile.
type Service struct {
	client   *api.Client
	provider session.Provider
	path     string
}

func NewService(client *api.Client, provider session.Provider, path string) (*Service, error) {
	if client == nil {
		return nil, errors.New("[NewService] api client is required")
	}
	if provider == nil {
		return nil, errors.New("[NewService] provider is required")
	}
	if path == "" {
		return nil, errors.New("[NewService] profile path is required")
	}
	return &Service{
		client:   client,
		provider: provider,
		path:     path,
	}, nil
}

// Fetch returns the current profile. Errors come from the api package.
func (s *Service) Fetch(ctx context.Context) (*Profile, error) {
	p, err := api.Get[Profile](ctx, s.client, s.path)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Complete validates the form, sets the chosen password as the visitor's
// credential and then saves the profile fields. A rejected credential leaves the
// profile untouched, so the form can be submitted again. It returns the saved
// profile.
func (s *Service) Complete(ctx context.Context, form CompletionForm) (*Profile, error) {
	form.FullName = strings.TrimSpace(form.FullName)
	form.Email = strings.TrimSpace(form.Email)
	if err := form.Validate(); err != nil {
		return nil, err
	}

	if form.Password != "" {
		if err := s.provider.UpdateCredential(ctx, form.Password); err != nil {
			return nil, errors.Wrap(err, "[Service.Complete] update credential")
		}
	}

	update := Profile{
		FullName: utils.Ptr(form.FullName),
		Email:    utils.Ptr(form.Email),
	}
	saved, err := api.Call[Profile](ctx, s.client, s.path, api.RequestOptions{
		Method: http.MethodPatch,
		Body:   update,
	})
	if err != nil {
		return nil, err
	}
	// 204 from the API, the update is what was stored
	if saved.ID == "" && saved.FullName == nil && saved.Email == nil {
		saved = update
	}
	return &saved, nil
}
