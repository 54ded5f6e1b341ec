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
	"sync"
	"time"
)

// ResponseLog accumulates per-request accounting while a response or stream
// is being processed. Stream translation and the request goroutine may touch
// it concurrently, so all access goes through the mutex.
type ResponseLog struct {
	mu sync.Mutex

	firstToken              time.Time
	outputTokens            uint64
	inputTokensFromResponse uint64
	totalTokens             uint64
	providerModel           string
}

// MarkFirstToken records the first-token timestamp. Only the first call has
// an effect.
func (l *ResponseLog) MarkFirstToken() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.firstToken.IsZero() {
		l.firstToken = time.Now()
	}
}

// FirstToken returns the recorded first-token timestamp, zero if no token
// arrived.
func (l *ResponseLog) FirstToken() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.firstToken
}

// SetOutputTokens records the completion token count reported upstream.
func (l *ResponseLog) SetOutputTokens(n uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outputTokens = n
}

// SetInputTokensFromResponse records the prompt token count reported upstream.
func (l *ResponseLog) SetInputTokensFromResponse(n uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inputTokensFromResponse = n
}

// SetTotalTokens records the combined token count.
func (l *ResponseLog) SetTotalTokens(n uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totalTokens = n
}

// SetProviderModel records the model name the provider actually served.
func (l *ResponseLog) SetProviderModel(model string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.providerModel = model
}

// Snapshot returns a consistent copy of the accumulated values.
func (l *ResponseLog) Snapshot() ResponseLogSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return ResponseLogSnapshot{
		FirstToken:              l.firstToken,
		OutputTokens:            l.outputTokens,
		InputTokensFromResponse: l.inputTokensFromResponse,
		TotalTokens:             l.totalTokens,
		ProviderModel:           l.providerModel,
	}
}

// ResponseLogSnapshot is an immutable view of a ResponseLog.
type ResponseLogSnapshot struct {
	FirstToken              time.Time
	OutputTokens            uint64
	InputTokensFromResponse uint64
	TotalTokens             uint64
	ProviderModel           string
}
