// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package credentials persists the access/refresh token pair in a durable
// key/value store shared by the transport and the connection channel.
package credentials

import (
	"context"
	"errors"
	"fmt"
)

// Storage keys, shared with the mobile client's local storage layout.
const (
	AccessTokenKey  = "accessToken"
	RefreshTokenKey = "refreshToken"
)

// ErrNotFound is returned by Store.Get when the key holds no value.
var ErrNotFound = errors.New("credentials: key not found")

// Store is a durable string key/value store.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Pair is the credential pair issued at login.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

// Save writes both tokens. The refresh token is written first so that a crash
// between the two writes never leaves an access token without its refresh token.
func Save(ctx context.Context, s Store, p Pair) error {
	if err := s.Set(ctx, RefreshTokenKey, p.RefreshToken); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	if err := s.Set(ctx, AccessTokenKey, p.AccessToken); err != nil {
		return fmt.Errorf("store access token: %w", err)
	}
	return nil
}

// SaveAccess replaces the access token after a refresh.
func SaveAccess(ctx context.Context, s Store, access string) error {
	if err := s.Set(ctx, AccessTokenKey, access); err != nil {
		return fmt.Errorf("store access token: %w", err)
	}
	return nil
}

// Access returns the stored access token, or "" when none is stored.
func Access(ctx context.Context, s Store) (string, error) {
	return lookup(ctx, s, AccessTokenKey)
}

// Refresh returns the stored refresh token, or "" when none is stored.
func Refresh(ctx context.Context, s Store) (string, error) {
	return lookup(ctx, s, RefreshTokenKey)
}

// Load returns whatever part of the pair is stored.
func Load(ctx context.Context, s Store) (Pair, error) {
	access, err := Access(ctx, s)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := Refresh(ctx, s)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

// Clear removes both tokens.
func Clear(ctx context.Context, s Store) error {
	if err := s.Delete(ctx, AccessTokenKey, RefreshTokenKey); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

func lookup(ctx context.Context, s Store, key string) (string, error) {
	v, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return v, nil
}
