// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package stsexchange performs the oauth2 token exchange that trades a
// source access token for an access boundary intermediary token and its
// paired session key.
package stsexchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"cloud.google.com/go/cab/internal"
	"github.com/googleapis/gax-go/v2/internallog"
)

const (
	grantType        = "urn:ietf:params:oauth:grant-type:token-exchange"
	subjectTokenType = "urn:ietf:params:oauth:token-type:access_token"

	// requestedTokenType asks the Security Token Server for an intermediary
	// token: a carrier for client-side Credential Access Boundary tokens
	// that is not usable as a normal access token on its own.
	requestedTokenType = "urn:ietf:params:oauth:token-type:access_boundary_intermediary_token"
)

// Response decodes the Security Token Server response for an intermediary
// token exchange.
type Response struct {
	AccessToken              string `json:"access_token"`
	IssuedTokenType          string `json:"issued_token_type"`
	TokenType                string `json:"token_type"`
	ExpiresIn                int    `json:"expires_in"`
	AccessBoundarySessionKey string `json:"access_boundary_session_key"`
}

// ExchangeIntermediaryToken exchanges subjectToken for an access boundary
// intermediary token at the provided Security Token Server endpoint. The
// returned response always carries a non-empty access token and session key.
// The call is not retried; retry policy belongs to the provided client.
func ExchangeIntermediaryToken(ctx context.Context, client *http.Client, logger *slog.Logger, endpoint, subjectToken string) (*Response, error) {
	data := url.Values{}
	data.Set("grant_type", grantType)
	data.Set("subject_token_type", subjectTokenType)
	data.Set("requested_token_type", requestedTokenType)
	data.Set("subject_token", subjectToken)
	encodedData := data.Encode()

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(encodedData))
	if err != nil {
		return nil, fmt.Errorf("stsexchange: failed to properly build http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Content-Length", strconv.Itoa(len(encodedData)))
	logger.DebugContext(ctx, "intermediary token request", "request", internallog.HTTPRequest(req, []byte(encodedData)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stsexchange: invalid response from Secure Token Server: %w", err)
	}
	defer resp.Body.Close()

	body, err := internal.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	logger.DebugContext(ctx, "intermediary token response", "response", internallog.HTTPResponse(resp, body))
	if c := resp.StatusCode; c < http.StatusOK || c > http.StatusMultipleChoices {
		return nil, fmt.Errorf("stsexchange: status code %d: %s", c, body)
	}

	var stsResp Response
	if err := json.Unmarshal(body, &stsResp); err != nil {
		return nil, fmt.Errorf("stsexchange: failed to unmarshal response body from Secure Token Server: %w", err)
	}
	if stsResp.AccessToken == "" {
		return nil, errors.New("stsexchange: no access token returned by the Secure Token Server")
	}
	if stsResp.AccessBoundarySessionKey == "" {
		return nil, errors.New("stsexchange: no access boundary session key returned by the Secure Token Server")
	}
	return &stsResp, nil
}
