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
	"bytes"
	"context"
	"encoding/base64"
	"fmt"

	"cloud.google.com/go/auth"
	"cloud.google.com/go/cab/internal"
	"cloud.google.com/go/cab/internal/accessboundary"
	"github.com/google/cel-go/cel"
	"github.com/tink-crypto/tink-go/v2/aead"
	"github.com/tink-crypto/tink-go/v2/insecurecleartextkeyset"
	"github.com/tink-crypto/tink-go/v2/keyset"
	exprpb "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
	"google.golang.org/protobuf/proto"
)

// GenerateToken mints a Credential Access Boundary token restricted by
// rules. The token value is the intermediary token and the encrypted,
// compiled access boundary joined by a ".". Its expiry mirrors the
// intermediary token's: a downscoped token cannot outlive the token that
// backs it.
//
// Rules with an invalid availability condition fail with a [*PolicyError];
// a session key that cannot be decoded or used fails with a
// [*SessionKeyError]. Neither disturbs the cached intermediary token.
func (f *Factory) GenerateToken(ctx context.Context, rules []AccessBoundaryRule) (*auth.Token, error) {
	if err := validateRules(rules); err != nil {
		return nil, err
	}
	ic, err := f.intermediateCreds(ctx)
	if err != nil {
		return nil, err
	}
	serialized, err := f.compileRestriction(rules)
	if err != nil {
		return nil, err
	}
	rawKey, err := base64.StdEncoding.DecodeString(ic.sessionKey)
	if err != nil {
		return nil, &SessionKeyError{err}
	}
	handle, err := insecurecleartextkeyset.Read(keyset.NewBinaryReader(bytes.NewReader(rawKey)))
	if err != nil {
		return nil, &SessionKeyError{err}
	}
	primitive, err := aead.New(handle)
	if err != nil {
		return nil, &SessionKeyError{err}
	}
	ciphertext, err := primitive.Encrypt(serialized, nil)
	if err != nil {
		return nil, fmt.Errorf("cab: encrypting the access boundary: %w", err)
	}
	return &auth.Token{
		Value:  ic.token.Value + "." + base64.RawURLEncoding.EncodeToString(ciphertext),
		Type:   internal.TokenTypeBearer,
		Expiry: ic.token.Expiry,
	}, nil
}

// compileRestriction compiles each rule's availability condition and
// serializes the restriction. Rule order is preserved end to end.
func (f *Factory) compileRestriction(rules []AccessBoundaryRule) ([]byte, error) {
	compiled := make([]accessboundary.Rule, 0, len(rules))
	for _, r := range rules {
		cr := accessboundary.Rule{
			AvailableResource:    r.AvailableResource,
			AvailablePermissions: r.AvailablePermissions,
		}
		if r.Condition != nil {
			b, err := f.compileCondition(r.Condition.Expression)
			if err != nil {
				return nil, err
			}
			cr.CompiledCondition = b
		}
		compiled = append(compiled, cr)
	}
	return accessboundary.Marshal(compiled), nil
}

// compileCondition compiles an availability condition expression to its
// serialized CEL form. Conditions are parsed rather than type-checked: the
// attributes available to IAM conditions are not declared client side.
func (f *Factory) compileCondition(expression string) ([]byte, error) {
	ast, iss := f.celEnv.Parse(expression)
	if err := iss.Err(); err != nil {
		return nil, &PolicyError{Expression: expression, err: err}
	}
	parsed, err := cel.AstToParsedExpr(ast)
	if err != nil {
		return nil, &PolicyError{Expression: expression, err: err}
	}
	checked := &exprpb.CheckedExpr{
		Expr:       parsed.GetExpr(),
		SourceInfo: parsed.GetSourceInfo(),
	}
	b, err := proto.Marshal(checked)
	if err != nil {
		return nil, fmt.Errorf("cab: serializing availability condition: %w", err)
	}
	return b, nil
}
