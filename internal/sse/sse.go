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

// Package sse rewrites server-sent event streams whose data frames carry JSON.
package sse

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// scanBufSize bounds a single SSE line; provider events stay well below this.
const scanBufSize = 1 << 20

// JSONTransform returns a reader that re-emits body frame by frame. Each
// "data:" frame is decoded into P and passed to fn together with the decode
// error, so a stateful mapper can track stream position and skip malformed
// events. When fn returns a non-nil U it is serialised as one outgoing
// "data:" frame; nil produces no output. Lines that are not data frames
// (comments, event names, blanks) are dropped.
//
// The returned reader propagates fn's input stream errors through the pipe
// and closes body when it is closed.
func JSONTransform[P any, U any](body io.ReadCloser, fn func(*P, error) *U) io.ReadCloser {
	pr, pw := io.Pipe()

	go func() {
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 4096), scanBufSize)

		for scanner.Scan() {
			line := scanner.Text()
			data, ok := strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}
			data = strings.TrimSpace(data)
			if data == "" {
				continue
			}

			var event P
			err := json.Unmarshal([]byte(data), &event)
			var out *U
			if err != nil {
				out = fn(nil, err)
			} else {
				out = fn(&event, nil)
			}
			if out == nil {
				continue
			}

			encoded, err := json.Marshal(out)
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			if _, err := pw.Write([]byte("data: " + string(encoded) + "\n\n")); err != nil {
				return
			}
		}

		pw.CloseWithError(scanner.Err())
	}()

	return pr
}
