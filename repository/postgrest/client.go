// Package postgrest implements the repository contracts against a hosted
// Supabase/PostgREST backend. Each repository wraps the shared client and
// translates between wire rows and the cache-facing models; transport and
// service failures surface through the repository error taxonomy.
package postgrest

import (
	"context"
	"fmt"

	"github.com/supabase-community/supabase-go"

	"github.com/letterdesk/go-newsletter-cache/repository"
)

// Config holds the backend connection settings.
type Config struct {
	// URL is the Supabase project URL.
	URL string
	// Key is the anon or service-role API key.
	Key string
	// Schema overrides the default "public" schema when set.
	Schema string
}

// Validate checks that the config can produce a working client.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("postgrest: URL is required")
	}
	if c.Key == "" {
		return fmt.Errorf("postgrest: Key is required")
	}
	return nil
}

// Client wraps the Supabase client shared by every repository.
type Client struct {
	sb *supabase.Client
}

// NewClient connects to the backend described by cfg.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var opts *supabase.ClientOptions
	if cfg.Schema != "" {
		opts = &supabase.ClientOptions{Schema: cfg.Schema}
	}
	sb, err := supabase.NewClient(cfg.URL, cfg.Key, opts)
	if err != nil {
		return nil, fmt.Errorf("postgrest: create client: %w", err)
	}
	return &Client{sb: sb}, nil
}

// Repositories returns the full repository set backed by this client.
func (c *Client) Repositories() repository.Set {
	return repository.Set{
		Newsletters:  &Newsletters{client: c},
		ReadingQueue: &ReadingQueue{client: c},
		Tags:         &Tags{client: c},
		Sources:      &Sources{client: c},
	}
}

// UserSupplier resolves the current user from an access token through the
// backend's auth endpoint. The token is fixed at construction; a session
// refresh swaps in a new supplier.
func (c *Client) UserSupplier(token string) repository.UserSupplier {
	return &tokenUser{client: c, token: token}
}

type tokenUser struct {
	client *Client
	token  string
}

// CurrentUserID implements repository.UserSupplier. The auth client carries
// its own HTTP context; an invalid or expired token reads as signed out.
func (u *tokenUser) CurrentUserID(context.Context) (string, bool) {
	if u.token == "" {
		return "", false
	}
	user, err := u.client.sb.Auth.WithToken(u.token).GetUser()
	if err != nil {
		return "", false
	}
	return user.ID.String(), true
}

// serviceErr wraps a backend failure with the operation name.
func serviceErr(op string, err error) error {
	return &repository.ServiceError{Op: op, Message: err.Error()}
}
