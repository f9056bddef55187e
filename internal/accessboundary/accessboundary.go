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

// Package accessboundary serializes client-side access boundary
// restrictions to the ClientSideAccessBoundary protobuf wire format that
// the token consumer decrypts and enforces.
package accessboundary

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the ClientSideAccessBoundary message and its nested
// ClientSideAccessBoundaryRule message.
const (
	fieldRules = 1

	fieldAvailableResource    = 1
	fieldAvailablePermissions = 2
	fieldCompiledCondition    = 3
)

// Rule is one entry of a client-side access boundary restriction.
type Rule struct {
	// AvailableResource is the full resource name the rule applies to.
	AvailableResource string
	// AvailablePermissions bounds the permissions available on the resource.
	AvailablePermissions []string
	// CompiledCondition is the serialized compiled form of the rule's
	// availability condition. Empty when the rule has no condition.
	CompiledCondition []byte
}

// Marshal encodes rules in order into the ClientSideAccessBoundary wire
// format. The condition field is omitted for rules without one.
func Marshal(rules []Rule) []byte {
	var b []byte
	for _, r := range rules {
		var rb []byte
		rb = protowire.AppendTag(rb, fieldAvailableResource, protowire.BytesType)
		rb = protowire.AppendString(rb, r.AvailableResource)
		for _, p := range r.AvailablePermissions {
			rb = protowire.AppendTag(rb, fieldAvailablePermissions, protowire.BytesType)
			rb = protowire.AppendString(rb, p)
		}
		if len(r.CompiledCondition) > 0 {
			rb = protowire.AppendTag(rb, fieldCompiledCondition, protowire.BytesType)
			rb = protowire.AppendBytes(rb, r.CompiledCondition)
		}
		b = protowire.AppendTag(b, fieldRules, protowire.BytesType)
		b = protowire.AppendBytes(b, rb)
	}
	return b
}

// Unmarshal decodes a ClientSideAccessBoundary message produced by
// [Marshal], preserving rule order.
func Unmarshal(data []byte) ([]Rule, error) {
	var rules []Rule
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("accessboundary: malformed tag: %w", protowire.ParseError(n))
		}
		data = data[n:]
		if num != fieldRules || typ != protowire.BytesType {
			return nil, fmt.Errorf("accessboundary: unexpected field %d of type %d", num, typ)
		}
		rb, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, fmt.Errorf("accessboundary: malformed rule: %w", protowire.ParseError(n))
		}
		data = data[n:]
		rule, err := unmarshalRule(rb)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func unmarshalRule(data []byte) (Rule, error) {
	var r Rule
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Rule{}, fmt.Errorf("accessboundary: malformed rule tag: %w", protowire.ParseError(n))
		}
		data = data[n:]
		if typ != protowire.BytesType {
			return Rule{}, fmt.Errorf("accessboundary: unexpected rule field %d of type %d", num, typ)
		}
		v, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return Rule{}, fmt.Errorf("accessboundary: malformed rule field %d: %w", num, protowire.ParseError(n))
		}
		data = data[n:]
		switch num {
		case fieldAvailableResource:
			r.AvailableResource = string(v)
		case fieldAvailablePermissions:
			r.AvailablePermissions = append(r.AvailablePermissions, string(v))
		case fieldCompiledCondition:
			r.CompiledCondition = append([]byte(nil), v...)
		default:
			return Rule{}, fmt.Errorf("accessboundary: unexpected rule field %d", num)
		}
	}
	return r, nil
}
