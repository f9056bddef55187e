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

package cab

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/auth"
	"cloud.google.com/go/cab/internal/stsexchange"
)

// for testing
var timeNow = time.Now

// intermediateCredentials pairs an intermediary token with the session key
// it was issued alongside. A session key is only valid in conjunction with
// its own token, so the pair is immutable and replaced wholesale on refresh.
type intermediateCredentials struct {
	token      *auth.Token
	sessionKey string
}

type tokenState int

const (
	// fresh indicates the token has comfortable lifetime left and no
	// refresh is needed.
	fresh tokenState = iota
	// stale indicates the token is still usable but a background refresh
	// should be started.
	stale
	// invalid indicates the token is missing or too close to expiry to
	// serve; callers must block on a refresh.
	invalid
)

func (f *Factory) state(ic *intermediateCredentials) tokenState {
	if ic == nil || ic.token == nil || ic.token.Value == "" {
		return invalid
	}
	// A token without an expiry never goes stale.
	if ic.token.Expiry.IsZero() {
		return fresh
	}
	remaining := ic.token.Expiry.Sub(timeNow())
	switch {
	case remaining <= f.minimumTokenLifetime:
		return invalid
	case remaining <= f.refreshMargin:
		return stale
	default:
		return fresh
	}
}

// refreshOp is the single in-flight refresh. creds and err are set, and the
// factory's in-flight handle cleared, before done is closed.
type refreshOp struct {
	done  chan struct{}
	creds *intermediateCredentials
	err   error
}

// intermediateCreds returns intermediary credentials with adequate
// remaining lifetime, performing the minimum necessary network work. Stale
// credentials are returned immediately while one background exchange runs;
// invalid credentials make the caller wait on the shared in-flight
// exchange, starting one only when none is running.
func (f *Factory) intermediateCreds(ctx context.Context) (*intermediateCredentials, error) {
	f.mu.Lock()
	ic := f.ic
	switch f.state(ic) {
	case fresh:
		f.mu.Unlock()
		return ic, nil
	case stale:
		f.startRefreshLocked()
		f.mu.Unlock()
		return ic, nil
	}
	op := f.startRefreshLocked()
	f.mu.Unlock()
	select {
	case <-op.done:
	case <-ctx.Done():
		// The refresh owner still completes and clears the handle; only
		// this wait fails.
		return nil, fmt.Errorf("cab: waiting for intermediary token refresh: %w", ctx.Err())
	}
	if op.err != nil {
		return nil, op.err
	}
	return op.creds, nil
}

// startRefreshLocked returns the in-flight refresh, starting one when none
// is running. Callers must hold f.mu. The exchange runs on its own
// goroutine with a background context: lock holders are never blocked on
// I/O, and a waiter's cancellation cannot abort a refresh other callers
// share.
func (f *Factory) startRefreshLocked() *refreshOp {
	if f.refresh != nil {
		return f.refresh
	}
	op := &refreshOp{done: make(chan struct{})}
	f.refresh = op
	go func() {
		creds, err := f.exchange(context.Background())
		f.mu.Lock()
		if err == nil {
			f.ic = creds
		}
		f.refresh = nil
		f.mu.Unlock()
		op.creds, op.err = creds, err
		close(op.done)
	}()
	return op
}

// validateUniverseDomain checks, on the first refresh, that the configured
// universe domain matches the source credential's. The check can require a
// network lookup, which is why it does not happen at construction. A
// mismatch is a configuration error and fails every refresh.
func (f *Factory) validateUniverseDomain(ctx context.Context) error {
	if f.universeDomain == "" || f.universeDomainOK.Load() {
		return nil
	}
	ud, err := f.creds.UniverseDomain(ctx)
	if err != nil {
		return fmt.Errorf("cab: unable to resolve the universe domain of the source credential: %w", err)
	}
	if ud != f.universeDomain {
		return fmt.Errorf("cab: the configured universe domain (%q) does not match the source credential universe domain (%q)", f.universeDomain, ud)
	}
	f.universeDomainOK.Store(true)
	return nil
}

// exchange performs one full refresh: refresh the source credential, trade
// its access token for an intermediary token plus session key, and compute
// the effective expiry.
func (f *Factory) exchange(ctx context.Context) (*intermediateCredentials, error) {
	if err := f.validateUniverseDomain(ctx); err != nil {
		return nil, err
	}
	tok, err := f.creds.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("cab: unable to refresh the provided source credential: %w", err)
	}
	if tok == nil || tok.Value == "" {
		return nil, errors.New("cab: the provided source credential has no access token")
	}
	resp, err := stsexchange.ExchangeIntermediaryToken(ctx, f.client, f.logger, f.endpoint, tok.Value)
	if err != nil {
		return nil, err
	}
	// An intermediary token derived from a service account (2LO) carries an
	// expires_in; one derived from a user token (3LO) does not and inherits
	// the remaining lifetime of the source token.
	var expiry time.Time
	if resp.ExpiresIn > 0 {
		expiry = timeNow().Add(time.Duration(resp.ExpiresIn) * time.Second)
	} else {
		expiry = tok.Expiry
	}
	return &intermediateCredentials{
		token: &auth.Token{
			Value:  resp.AccessToken,
			Type:   resp.TokenType,
			Expiry: expiry,
		},
		sessionKey: resp.AccessBoundarySessionKey,
	}, nil
}
