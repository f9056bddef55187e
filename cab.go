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
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"cloud.google.com/go/auth"
	"cloud.google.com/go/cab/internal"
	"github.com/google/cel-go/cel"
	"github.com/googleapis/gax-go/v2/internallog"
)

const (
	universeDomainPlaceholder       = "UNIVERSE_DOMAIN"
	identityBindingEndpointTemplate = "https://sts.UNIVERSE_DOMAIN/v1/token"

	defaultMinimumTokenLifetime = 3 * time.Minute
	defaultRefreshMargin        = 30 * time.Minute

	// refreshGap is the required head start of RefreshMargin over
	// MinimumTokenLifetime, so the background-refresh window always opens
	// strictly before the blocking window.
	refreshGap = time.Minute

	maxRules = 10
)

// Options for configuring a [Factory] or [NewCredentials].
type Options struct {
	// Credentials is the [cloud.google.com/go/auth.Credentials] to
	// downscope. Required.
	Credentials *auth.Credentials
	// Rules defines the accesses held by credentials returned from
	// [NewCredentials]. There can be a maximum of 10 AccessBoundaryRules.
	// Required by [NewCredentials], unused by [NewFactory], which instead
	// takes rules per [Factory.GenerateToken] call.
	Rules []AccessBoundaryRule
	// Client configures the underlying client used to make network requests
	// when exchanging tokens. Optional.
	Client *http.Client
	// UniverseDomain is the default service domain for a given Cloud
	// universe. The default value is "googleapis.com". When set, it must
	// match the universe domain of Credentials. Optional.
	UniverseDomain string
	// MinimumTokenLifetime is the remaining lifetime below which the cached
	// intermediary token is no longer served and callers block on a new
	// exchange. Must be positive. The default value is 3 minutes. Optional.
	MinimumTokenLifetime time.Duration
	// RefreshMargin is the remaining lifetime at which a background exchange
	// is started while the current intermediary token keeps being served.
	// Must be positive and exceed MinimumTokenLifetime by at least one
	// minute. The default value is 30 minutes. Optional.
	RefreshMargin time.Duration
	// Logger is used for debug logging. If provided, logging will be enabled
	// at the loggers configured level. By default logging is disabled unless
	// enabled by setting GOOGLE_SDK_GO_LOGGING_LEVEL in which case a default
	// logger will be used. Optional.
	Logger *slog.Logger
}

func (o *Options) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return internal.CloneDefaultClient()
}

func (o *Options) minimumTokenLifetime() time.Duration {
	if o.MinimumTokenLifetime == 0 {
		return defaultMinimumTokenLifetime
	}
	return o.MinimumTokenLifetime
}

func (o *Options) refreshMargin() time.Duration {
	if o.RefreshMargin == 0 {
		return defaultRefreshMargin
	}
	return o.RefreshMargin
}

// identityBindingEndpoint returns the identity binding endpoint with the
// configured universe domain.
func (o *Options) identityBindingEndpoint() string {
	if o.UniverseDomain == "" {
		return strings.Replace(identityBindingEndpointTemplate, universeDomainPlaceholder, internal.DefaultUniverseDomain, 1)
	}
	return strings.Replace(identityBindingEndpointTemplate, universeDomainPlaceholder, o.UniverseDomain, 1)
}

func (o *Options) validate() error {
	if o == nil {
		return errors.New("cab: providing opts is required")
	}
	if o.Credentials == nil {
		return errors.New("cab: Credentials cannot be nil")
	}
	if o.MinimumTokenLifetime < 0 {
		return errors.New("cab: MinimumTokenLifetime must be positive")
	}
	if o.RefreshMargin < 0 {
		return errors.New("cab: RefreshMargin must be positive")
	}
	if o.refreshMargin() < o.minimumTokenLifetime()+refreshGap {
		return fmt.Errorf("cab: RefreshMargin must exceed MinimumTokenLifetime by at least %v", refreshGap)
	}
	return nil
}

// An AccessBoundaryRule Sets the permissions (and optionally conditions)
// that the generated token has on a given resource.
type AccessBoundaryRule struct {
	// AvailableResource is the full resource name of the Cloud Storage bucket
	// that the rule applies to. Use the format
	// //storage.googleapis.com/projects/_/buckets/bucket-name.
	AvailableResource string `json:"availableResource"`
	// AvailablePermissions is a list that defines the upper bound on the available permissions
	// for the resource. Each value is the identifier for an IAM predefined role or custom role,
	// with the prefix inRole:. For example: inRole:roles/storage.objectViewer.
	// Only the permissions in these roles will be available.
	AvailablePermissions []string `json:"availablePermissions"`
	// An Condition restricts the availability of permissions
	// to specific Cloud Storage objects. Optional.
	//
	// A Condition can be used to make permissions available for specific objects,
	// rather than all objects in a Cloud Storage bucket.
	Condition *AvailabilityCondition `json:"availabilityCondition,omitempty"`
}

// An AvailabilityCondition restricts access to a given Resource.
type AvailabilityCondition struct {
	// An Expression specifies the Cloud Storage objects where
	// permissions are available. For further documentation, see
	// https://cloud.google.com/iam/docs/conditions-overview. Required.
	Expression string `json:"expression"`
	// Title is short string that identifies the purpose of the condition. Optional.
	Title string `json:"title,omitempty"`
	// Description details about the purpose of the condition. Optional.
	Description string `json:"description,omitempty"`
}

func validateRules(rules []AccessBoundaryRule) error {
	if len(rules) == 0 {
		return errors.New("cab: length of AccessBoundaryRules must be at least 1")
	}
	if len(rules) > maxRules {
		return fmt.Errorf("cab: length of AccessBoundaryRules may not be greater than %d", maxRules)
	}
	for _, val := range rules {
		if val.AvailableResource == "" {
			return errors.New("cab: all rules must have a nonempty AvailableResource")
		}
		if len(val.AvailablePermissions) == 0 {
			return errors.New("cab: all rules must provide at least one permission")
		}
	}
	return nil
}

// A Factory mints client-side Credential Access Boundary tokens. It caches
// the intermediary token and session key obtained from the Security Token
// Server and keeps them fresh across concurrent [Factory.GenerateToken]
// calls. A Factory is safe for concurrent use by multiple goroutines.
type Factory struct {
	creds          *auth.Credentials
	client         *http.Client
	logger         *slog.Logger
	endpoint       string
	universeDomain string

	minimumTokenLifetime time.Duration
	refreshMargin        time.Duration

	// universeDomainOK records a successful match between the configured
	// universe domain and the source credential's, so the lookup happens at
	// most once.
	universeDomainOK atomic.Bool

	celEnv *cel.Env

	// mu guards ic and refresh. The token exchange itself always runs
	// outside the lock so readers of ic are never blocked on I/O.
	mu      sync.Mutex
	ic      *intermediateCredentials
	refresh *refreshOp
}

// NewFactory validates opts and returns a [Factory]. The opts.Rules field is
// not used; rules are supplied per [Factory.GenerateToken] call.
func NewFactory(opts *Options) (*Factory, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	env, err := cel.NewEnv()
	if err != nil {
		return nil, fmt.Errorf("cab: creating the availability condition compiler: %w", err)
	}
	f := &Factory{
		creds:                opts.Credentials,
		client:               opts.client(),
		logger:               internallog.New(opts.Logger),
		endpoint:             opts.identityBindingEndpoint(),
		universeDomain:       opts.UniverseDomain,
		minimumTokenLifetime: opts.minimumTokenLifetime(),
		refreshMargin:        opts.refreshMargin(),
		celEnv:               env,
	}
	return f, nil
}

// NewCredentials returns a [cloud.google.com/go/auth.Credentials] that is
// more restrictive than the [Options.Credentials] provided, bounded by
// [Options.Rules]. The new credentials delegate to the base credentials for
// all non-token activity. Tokens are minted locally from a cached
// intermediary token, so most calls do not hit the network.
func NewCredentials(opts *Options) (*auth.Credentials, error) {
	f, err := NewFactory(opts)
	if err != nil {
		return nil, err
	}
	if err := validateRules(opts.Rules); err != nil {
		return nil, err
	}
	return auth.NewCredentials(&auth.CredentialsOptions{
		TokenProvider: &cabTokenProvider{
			factory: f,
			rules:   opts.Rules,
		},
		ProjectIDProvider:      auth.CredentialsPropertyFunc(opts.Credentials.ProjectID),
		QuotaProjectIDProvider: auth.CredentialsPropertyFunc(opts.Credentials.QuotaProjectID),
		UniverseDomainProvider: auth.CredentialsPropertyFunc(func(context.Context) (string, error) {
			if f.universeDomain == "" {
				return internal.DefaultUniverseDomain, nil
			}
			return f.universeDomain, nil
		}),
	}), nil
}

// cabTokenProvider mints CAB tokens for a fixed access boundary.
type cabTokenProvider struct {
	factory *Factory
	rules   []AccessBoundaryRule
}

func (p *cabTokenProvider) Token(ctx context.Context) (*auth.Token, error) {
	return p.factory.GenerateToken(ctx, p.rules)
}
