/*
 * Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package llm

import (
	"io"
	"net/http"
)

// Provider translates between the universal schema and one upstream LLM API.
// Implementations are stateless; per-request state lives in ResponseLog.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Host returns the upstream API host to dial.
	Host() string

	// Path returns the upstream request path for chat completions.
	Path() string

	// SetupRequest sets provider authentication and version headers on the
	// outgoing upstream request.
	SetupRequest(req *http.Request) error

	// ProcessRequest translates a universal request into the provider's wire
	// format.
	ProcessRequest(req *Request) ([]byte, error)

	// ProcessResponse translates a successful provider response body into a
	// universal Response.
	ProcessResponse(body []byte) (*Response, error)

	// ProcessError translates a provider error body into the universal error
	// envelope. A body that does not decode as the provider's envelope is
	// returned as an error for the caller to surface.
	ProcessError(statusCode int, body []byte) (*ErrorResponse, error)

	// ProcessStreaming rewrites the provider's SSE stream into universal
	// chat.completion.chunk frames, recording usage into log as it goes.
	ProcessStreaming(log *ResponseLog, body io.ReadCloser) io.ReadCloser
}
