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

package accessboundary

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestMarshal_WireLayout(t *testing.T) {
	got := Marshal([]Rule{
		{
			AvailableResource:    "resource",
			AvailablePermissions: []string{"perm1", "perm2"},
		},
	})

	num, typ, n := protowire.ConsumeTag(got)
	if n < 0 {
		t.Fatalf("malformed tag: %v", protowire.ParseError(n))
	}
	if num != fieldRules || typ != protowire.BytesType {
		t.Fatalf("outer field = %d/%d, want %d/%d", num, typ, fieldRules, protowire.BytesType)
	}
	rule, n := protowire.ConsumeBytes(got[n:])
	if n < 0 {
		t.Fatalf("malformed rule: %v", protowire.ParseError(n))
	}

	// availableResource, then the permissions in order, and no condition
	// field for a conditionless rule.
	wantFields := []protowire.Number{fieldAvailableResource, fieldAvailablePermissions, fieldAvailablePermissions}
	wantValues := []string{"resource", "perm1", "perm2"}
	for i := 0; len(rule) > 0; i++ {
		num, typ, n := protowire.ConsumeTag(rule)
		if n < 0 {
			t.Fatalf("malformed rule tag: %v", protowire.ParseError(n))
		}
		if i >= len(wantFields) {
			t.Fatalf("unexpected extra rule field %d", num)
		}
		if num != wantFields[i] || typ != protowire.BytesType {
			t.Errorf("rule field %d = %d/%d, want %d/%d", i, num, typ, wantFields[i], protowire.BytesType)
		}
		v, vn := protowire.ConsumeBytes(rule[n:])
		if vn < 0 {
			t.Fatalf("malformed rule value: %v", protowire.ParseError(vn))
		}
		if string(v) != wantValues[i] {
			t.Errorf("rule value %d = %q, want %q", i, v, wantValues[i])
		}
		rule = rule[n+vn:]
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	rules := []Rule{
		{
			AvailableResource:    "//storage.googleapis.com/projects/_/buckets/foo",
			AvailablePermissions: []string{"inRole:roles/storage.objectViewer", "inRole:roles/storage.objectCreator"},
			CompiledCondition:    []byte{0x0a, 0x02, 0x08, 0x01},
		},
		{
			AvailableResource:    "//storage.googleapis.com/projects/_/buckets/bar",
			AvailablePermissions: []string{"inRole:roles/storage.objectViewer"},
		},
	}
	got, err := Unmarshal(Marshal(rules))
	if err != nil {
		t.Fatalf("Unmarshal() = %v", err)
	}
	if diff := cmp.Diff(rules, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmarshal_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "truncated tag",
			data: []byte{0x80},
		},
		{
			name: "wrong outer field",
			data: protowire.AppendTag(nil, 2, protowire.VarintType),
		},
		{
			name: "truncated rule",
			data: append(protowire.AppendTag(nil, fieldRules, protowire.BytesType), 0x05, 0x01),
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := Unmarshal(test.data); err == nil {
				t.Fatal("want non-nil err")
			}
		})
	}
}
