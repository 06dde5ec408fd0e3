// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ManuGH/goldenclean/internal/credentials"
	xglog "github.com/ManuGH/goldenclean/internal/log"
	"github.com/ManuGH/goldenclean/internal/metrics"
)

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access string `json:"access"`
}

// refresh exchanges the refresh token for a new access token. Concurrent
// callers share a single in-flight exchange.
func (c *Client) refresh(ctx context.Context, refreshToken string) (string, error) {
	ch := c.refreshGroup.DoChan("refresh", func() (any, error) {
		// Detached so one caller's cancellation does not fail the shared refresh.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultTimeout)
		defer cancel()
		return c.exchange(rctx, refreshToken)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Shared {
			metrics.IncCredentialRefreshShared()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Client) exchange(ctx context.Context, refreshToken string) (string, error) {
	resp, err := c.do(ctx, Request{
		Method:         http.MethodPost,
		Path:           RefreshPath,
		Body:           refreshRequest{Refresh: refreshToken},
		FailureMessage: "token refresh failed",
	}, "", false)
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) && te.Status > 0 {
			metrics.IncCredentialRefresh("rejected")
			c.logger.Warn().Int(xglog.FieldStatus, te.Status).Msg("refresh token rejected, clearing credentials")
			if cerr := credentials.Clear(ctx, c.store); cerr != nil {
				c.logger.Error().Err(cerr).Msg("failed to clear rejected credentials")
			}
			return "", err
		}
		metrics.IncCredentialRefresh("error")
		return "", err
	}

	var body refreshResponse
	if err := resp.Decode(&body); err != nil {
		metrics.IncCredentialRefresh("error")
		return "", err
	}
	if body.Access == "" {
		metrics.IncCredentialRefresh("error")
		return "", fmt.Errorf("%w: refresh response has no access token", ErrBadResponse)
	}
	if err := credentials.SaveAccess(ctx, c.store, body.Access); err != nil {
		metrics.IncCredentialRefresh("error")
		return "", err
	}

	metrics.IncCredentialRefresh("success")
	c.logger.Info().Msg("access token refreshed")
	return body.Access, nil
}
