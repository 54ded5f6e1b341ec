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

package xdsclient

import (
	"context"
	"log/slog"
	"time"
)

// backoff spaces out stream reconnection attempts. Each attempt doubles the
// delay from the initial value up to the cap; graceful stream ends reset the
// sequence so the next attempt is immediate again.
type backoff struct {
	initial  time.Duration
	max      time.Duration
	attempts int
}

func newBackoff(initial, max time.Duration) *backoff {
	return &backoff{initial: initial, max: max}
}

// next returns the delay for the upcoming attempt and advances the sequence.
func (b *backoff) next() time.Duration {
	delay := b.initial
	for i := 0; i < b.attempts && delay < b.max; i++ {
		delay *= 2
	}
	if delay > b.max {
		delay = b.max
	}
	b.attempts++
	return delay
}

// reset restarts the sequence at the initial delay.
func (b *backoff) reset() {
	b.attempts = 0
}

// wait sleeps for the next delay, returning early when ctx is cancelled.
func (b *backoff) wait(ctx context.Context) error {
	delay := b.next()

	slog.InfoContext(ctx, "Backing off before reconnect",
		"delay", delay,
		"attempt", b.attempts)

	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
