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

package sse

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inEvent struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

type outEvent struct {
	Seq  int    `json:"seq"`
	Text string `json:"text"`
}

func TestJSONTransformMapsFrames(t *testing.T) {
	input := strings.Join([]string{
		`event: delta`,
		`data: {"kind":"text","text":"hello"}`,
		``,
		`data: {"kind":"text","text":"world"}`,
		``,
	}, "\n")

	seq := 0
	r := JSONTransform(io.NopCloser(strings.NewReader(input)), func(ev *inEvent, err error) *outEvent {
		require.NoError(t, err)
		seq++
		return &outEvent{Seq: seq, Text: ev.Text}
	})

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t,
		"data: {\"seq\":1,\"text\":\"hello\"}\n\ndata: {\"seq\":2,\"text\":\"world\"}\n\n",
		string(out))
}

func TestJSONTransformNilSkipsFrame(t *testing.T) {
	input := "data: {\"kind\":\"ping\"}\n\ndata: {\"kind\":\"text\",\"text\":\"kept\"}\n\n"

	r := JSONTransform(io.NopCloser(strings.NewReader(input)), func(ev *inEvent, err error) *outEvent {
		require.NoError(t, err)
		if ev.Kind != "text" {
			return nil
		}
		return &outEvent{Text: ev.Text}
	})

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "data: {\"seq\":0,\"text\":\"kept\"}\n\n", string(out))
}

func TestJSONTransformMalformedFrame(t *testing.T) {
	input := "data: {not json}\n\ndata: {\"kind\":\"text\",\"text\":\"ok\"}\n\n"

	var sawErr bool
	r := JSONTransform(io.NopCloser(strings.NewReader(input)), func(ev *inEvent, err error) *outEvent {
		if err != nil {
			sawErr = true
			return nil
		}
		return &outEvent{Text: ev.Text}
	})

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.True(t, sawErr)
	assert.Equal(t, "data: {\"seq\":0,\"text\":\"ok\"}\n\n", string(out))
}

func TestJSONTransformStatefulMapper(t *testing.T) {
	input := "data: {\"kind\":\"a\"}\n\ndata: {\"kind\":\"b\"}\n\ndata: {\"kind\":\"c\"}\n\n"

	count := 0
	r := JSONTransform(io.NopCloser(strings.NewReader(input)), func(ev *inEvent, err error) *outEvent {
		require.NoError(t, err)
		count++
		// Only emit from the second frame onwards
		if count < 2 {
			return nil
		}
		return &outEvent{Seq: count, Text: ev.Kind}
	})

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t,
		"data: {\"seq\":2,\"text\":\"b\"}\n\ndata: {\"seq\":3,\"text\":\"c\"}\n\n",
		string(out))
}

func TestJSONTransformEmptyStream(t *testing.T) {
	r := JSONTransform(io.NopCloser(strings.NewReader("")), func(ev *inEvent, err error) *outEvent {
		t.Fatal("mapper should not be called")
		return nil
	})

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Empty(t, out)
}
