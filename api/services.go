package api

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
)

// Session is the credential payload returned by the auth endpoints. User is
// kept raw so the caller owns its schema.
type Session struct {
	AccessToken  string          `json:"accessToken"`
	RefreshToken string          `json:"refreshToken,omitempty"`
	User         json.RawMessage `json:"user"`
}

// AuthAPI wraps the /auth endpoints.
type AuthAPI struct {
	client *Client
}

// NewAuthAPI returns the auth endpoint wrapper for client.
func NewAuthAPI(client *Client) *AuthAPI { return &AuthAPI{client: client} }

func (a *AuthAPI) Login(ctx context.Context, email, password string) (*Session, error) {
	var out Session
	body := map[string]string{"email": email, "password": password}
	if err := a.client.Post(ctx, "/auth/login", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *AuthAPI) Register(ctx context.Context, name, email, password string) (*Session, error) {
	var out Session
	body := map[string]string{"name": name, "email": email, "password": password}
	if err := a.client.Post(ctx, "/auth/register", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *AuthAPI) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	var out Session
	body := map[string]string{"refreshToken": refreshToken}
	if err := a.client.Post(ctx, "/auth/refresh", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Validate confirms the current access token is still accepted server-side
// and returns the fresh user payload.
func (a *AuthAPI) Validate(ctx context.Context) (json.RawMessage, error) {
	var out struct {
		User json.RawMessage `json:"user"`
	}
	if err := a.client.Get(ctx, "/auth/validate", nil, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

// Logout revokes the refresh token server-side.
func (a *AuthAPI) Logout(ctx context.Context, refreshToken string) error {
	body := map[string]string{"refreshToken": refreshToken}
	return a.client.Post(ctx, "/auth/logout", body, nil)
}

// Model describes a generation model offered by the platform.
type Model struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider,omitempty"`
}

// Track is one generated piece in the user's library.
type Track struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	URL       string `json:"url,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// Pagination accompanies paged listings.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// TrackPage is one page of the user's library.
type TrackPage struct {
	Items      []Track    `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// GenerateRequest starts a music generation job.
type GenerateRequest struct {
	Prompt   string `json:"prompt"`
	ModelID  string `json:"modelId,omitempty"`
	Duration int    `json:"duration,omitempty"`
}

// MusicAPI wraps the /music endpoints.
type MusicAPI struct {
	client *Client
}

// NewMusicAPI returns the music endpoint wrapper for client.
func NewMusicAPI(client *Client) *MusicAPI { return &MusicAPI{client: client} }

func (m *MusicAPI) Models(ctx context.Context) ([]Model, error) {
	var out []Model
	if err := m.client.Get(ctx, "/music/models", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MusicAPI) MyMusic(ctx context.Context, page, limit int) (*TrackPage, error) {
	params := url.Values{}
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var out TrackPage
	if err := m.client.Get(ctx, "/music/my-music", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (m *MusicAPI) Generate(ctx context.Context, req GenerateRequest) (*Track, error) {
	var out Track
	if err := m.client.Post(ctx, "/music/generate", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
