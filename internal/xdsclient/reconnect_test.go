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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffDoubles(t *testing.T) {
	b := newBackoff(10*time.Millisecond, 15*time.Second)

	assert.Equal(t, 10*time.Millisecond, b.next())
	assert.Equal(t, 20*time.Millisecond, b.next())
	assert.Equal(t, 40*time.Millisecond, b.next())
}

func TestBackoffCapped(t *testing.T) {
	b := newBackoff(10*time.Millisecond, 50*time.Millisecond)

	b.next() // 10ms
	b.next() // 20ms
	b.next() // 40ms
	assert.Equal(t, 50*time.Millisecond, b.next())
	assert.Equal(t, 50*time.Millisecond, b.next())
}

func TestBackoffReset(t *testing.T) {
	b := newBackoff(10*time.Millisecond, 15*time.Second)

	b.next()
	b.next()
	b.reset()

	assert.Equal(t, 10*time.Millisecond, b.next())
}

func TestBackoffWait(t *testing.T) {
	b := newBackoff(time.Millisecond, time.Second)
	require.NoError(t, b.wait(context.Background()))
}

func TestBackoffWaitCancelled(t *testing.T) {
	b := newBackoff(10*time.Second, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := b.wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
