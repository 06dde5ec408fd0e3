// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package backend exposes the typed service API (auth, addresses, service
// requests) on top of the authenticated transport.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/goldenclean/internal/credentials"
	xglog "github.com/ManuGH/goldenclean/internal/log"
	"github.com/ManuGH/goldenclean/internal/transport"
)

// Role is the account type returned at login.
type Role string

const (
	RoleClient   Role = "CLIENT"
	RoleEmployee Role = "EMPLOYEE"
)

const (
	msgFetchAddresses = "failed to fetch addresses, please try again"
	msgRequestService = "failed to request service, please try again"
)

var (
	ErrUnknownRole      = errors.New("unknown role")
	ErrNoAddress        = errors.New("please select an address")
	ErrEmptyDescription = errors.New("please describe the service you need")
	ErrMissingLogin     = errors.New("username and password are required")
)

type Address struct {
	ID         int    `json:"id"`
	Street     string `json:"street"`
	Number     string `json:"number"`
	ComunaName string `json:"comuna_name"`
	RegionName string `json:"region_name"`
}

func (a Address) String() string {
	return fmt.Sprintf("%s %s, %s, %s", a.Street, a.Number, a.ComunaName, a.RegionName)
}

type ServiceRequest struct {
	Description string `json:"description"`
	Address     int    `json:"address"`
}

type ServiceResponse struct {
	ID          int     `json:"id"`
	Client      int     `json:"client"`
	Description string  `json:"description"`
	Address     Address `json:"address"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Refresh string `json:"refresh"`
	Access  string `json:"access"`
	Role    Role   `json:"role"`
}

// Caller is the transport surface used by Client.
type Caller interface {
	Call(ctx context.Context, req transport.Request) (*transport.Response, error)
}

// Client wraps the backend endpoints.
type Client struct {
	caller Caller
	store  credentials.Store
	logger zerolog.Logger
}

func New(caller Caller, store credentials.Store) *Client {
	return &Client{
		caller: caller,
		store:  store,
		logger: xglog.WithComponent("backend"),
	}
}

// Login authenticates, persists the issued token pair and returns the role.
// Tokens are stored even when the role is not recognised; ErrUnknownRole is
// returned in that case.
func (c *Client) Login(ctx context.Context, username, password string) (Role, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", ErrMissingLogin
	}

	resp, err := c.caller.Call(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   "auth/login/",
		Body:   loginRequest{Username: username, Password: password},
	})
	if err != nil {
		return "", err
	}

	var out loginResponse
	if err := resp.Decode(&out); err != nil {
		return "", err
	}
	if out.Access == "" || out.Refresh == "" {
		return "", fmt.Errorf("%w: login response is missing tokens", transport.ErrBadResponse)
	}
	if err := credentials.Save(ctx, c.store, credentials.Pair{AccessToken: out.Access, RefreshToken: out.Refresh}); err != nil {
		return "", err
	}

	c.logger.Info().Str(xglog.FieldUser, username).Str(xglog.FieldRole, string(out.Role)).Msg("logged in")

	switch out.Role {
	case RoleClient, RoleEmployee:
		return out.Role, nil
	default:
		return out.Role, fmt.Errorf("%w: %q", ErrUnknownRole, out.Role)
	}
}

// Logout forgets the stored credentials.
func (c *Client) Logout(ctx context.Context) error {
	if err := credentials.Clear(ctx, c.store); err != nil {
		return err
	}
	c.logger.Info().Msg("logged out")
	return nil
}

// Addresses lists the current user's addresses.
func (c *Client) Addresses(ctx context.Context) ([]Address, error) {
	resp, err := c.caller.Call(ctx, transport.Request{
		Method:         http.MethodGet,
		Path:           "user/addresses/",
		RequiresAuth:   true,
		FailureMessage: msgFetchAddresses,
	})
	if err != nil {
		return nil, err
	}
	var out []Address
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// RequestService files a service request for addressID. addressID <= 0 means
// no address was selected.
func (c *Client) RequestService(ctx context.Context, addressID int, description string) (*ServiceResponse, error) {
	if addressID <= 0 {
		return nil, ErrNoAddress
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, ErrEmptyDescription
	}

	resp, err := c.caller.Call(ctx, transport.Request{
		Method:         http.MethodPost,
		Path:           "service/request/",
		Body:           ServiceRequest{Description: description, Address: addressID},
		RequiresAuth:   true,
		FailureMessage: msgRequestService,
	})
	if err != nil {
		return nil, err
	}
	var out ServiceResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	c.logger.Info().Int("service_request", out.ID).Str("request_status", out.Status).Msg("service requested")
	return &out, nil
}
