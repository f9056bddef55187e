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

// Package cab generates client-side Credential Access Boundary (CAB)
// tokens: short-lived tokens that restrict, or downscope, the Identity and
// Access Management permissions of a source credential. For background on
// downscoping, see
// https://cloud.google.com/iam/docs/downscoping-short-lived-credentials
//
// Unlike server-side downscoping, where every generated token costs a round
// trip to the Security Token Server, a [Factory] exchanges the source
// credential once for an intermediary token and a paired session key, then
// mints CAB tokens locally by encrypting each access boundary with the
// session key. This makes per-request access boundaries practical: a token
// broker can serve many consumers, each with a different boundary, off a
// single exchange.
//
// The Factory keeps the intermediary token fresh automatically. While the
// token has comfortable lifetime left, [Factory.GenerateToken] is purely
// local. Once the remaining lifetime falls inside the refresh margin, a
// single background exchange is started while callers continue to use the
// current token. Only when the remaining lifetime drops below the minimum
// token lifetime do callers block on the exchange, and concurrent callers
// share one in-flight exchange rather than issuing their own.
//
// For a fixed access boundary, [NewCredentials] wraps a Factory in a
// [cloud.google.com/go/auth.Credentials] so the downscoped credential can
// be used anywhere a credential is accepted.
package cab
