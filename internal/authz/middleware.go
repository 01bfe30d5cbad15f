// Copyright 2025 the airs-mcp authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package authz

// Middleware composes one extractor with one policy. The policy and
// extractor types are parameters, so each concrete combination resolves
// its calls statically.
type Middleware[C any, R any, P Policy[C], E MethodExtractor[R]] struct {
	policy    P
	extractor E
}

// NewMiddleware builds the composition.
func NewMiddleware[C any, R any, P Policy[C], E MethodExtractor[R]](policy P, extractor E) Middleware[C, R, P, E] {
	return Middleware[C, R, P, E]{policy: policy, extractor: extractor}
}

// Authorize is the single entry point: extract the method from the
// request, then ask the policy.
func (m Middleware[C, R, P, E]) Authorize(authCtx C, req R) error {
	method, err := m.extractor.ExtractMethod(req)
	if err != nil {
		return err
	}
	return m.policy.Authorize(authCtx, method)
}
