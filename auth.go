package slate

import (
	"context"
	"fmt"
)

// User is the server-side account the current credential resolves to.
type User struct {
	Name      string         `json:"name"`
	FullName  string         `json:"fullName"`
	Email     string         `json:"email"`
	IsAdmin   bool           `json:"isAdmin"`
	IsService bool           `json:"isService"`
	Attrib    map[string]any `json:"attrib"`
}

// CurrentUser returns the account behind this Connection's credential.
// A rejected credential surfaces as ErrAuthentication.
func (c *Connection) CurrentUser(ctx context.Context) (User, error) {
	resp, err := c.Get(ctx, "users/me")
	if err != nil {
		return User{}, err
	}

	var user User
	if err := resp.DecodeJSON(&user); err != nil {
		return User{}, err
	}

	return user, nil
}

// Login exchanges a username/password for an access token and returns a new
// Connection carrying it. A Connection's credential is immutable, so login
// never mutates an existing instance. Rejected credentials surface as
// ErrAuthentication.
func Login(ctx context.Context, baseURL, name, password string, opts ...Option) (*Connection, error) {
	probe, err := NewConnection(baseURL, "", opts...)
	if err != nil {
		return nil, err
	}

	resp, err := probe.Post(ctx, "auth/login", map[string]string{
		"name":     name,
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	var body struct {
		Token string `json:"token"`
	}

	if err := resp.DecodeJSON(&body); err != nil {
		return nil, err
	}

	if body.Token == "" {
		return nil, fmt.Errorf("slate: login returned no token: %w", ErrAuthentication)
	}

	return NewConnection(baseURL, body.Token, opts...)
}

// Logout invalidates this Connection's token server-side. The Connection is
// unusable afterwards; construct a new one to continue.
func (c *Connection) Logout(ctx context.Context) error {
	_, err := c.Post(ctx, "auth/logout", nil)
	return err
}
