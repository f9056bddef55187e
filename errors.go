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

import "fmt"

// PolicyError reports an access boundary rule whose availability condition
// could not be compiled. It indicates a problem with the caller-supplied
// rules, not a transient failure, and retrying with the same rules will not
// succeed.
type PolicyError struct {
	// Expression is the availability condition that failed to compile.
	Expression string

	err error
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("cab: invalid availability condition %q: %v", e.Expression, e.err)
}

func (e *PolicyError) Unwrap() error {
	return e.err
}

// SessionKeyError reports an access boundary session key that could not be
// decoded or used as an encryption key.
type SessionKeyError struct {
	err error
}

func (e *SessionKeyError) Error() string {
	return fmt.Sprintf("cab: invalid access boundary session key: %v", e.err)
}

func (e *SessionKeyError) Unwrap() error {
	return e.err
}
