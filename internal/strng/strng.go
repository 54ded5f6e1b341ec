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

// Package strng provides interned strings. Configuration resources repeat the
// same names, type URLs and hostnames many times; interning deduplicates the
// backing storage and turns equality checks into pointer comparisons.
package strng

import (
	"encoding/json"
	"unique"
)

// Str is an interned string. Two Str values built from equal contents compare
// equal with ==, so Str is cheap to use as a map key. The zero value behaves
// as the empty string.
type Str struct {
	h unique.Handle[string]
}

// Empty is the empty string. It equals both the zero Str and New("").
var Empty Str

// New interns s and returns its handle. The empty string maps to the zero
// Str, so equal contents always imply structural equality.
func New(s string) Str {
	if s == "" {
		return Str{}
	}
	return Str{h: unique.Make(s)}
}

// String returns the interned contents.
func (s Str) String() string {
	var zero unique.Handle[string]
	if s.h == zero {
		return ""
	}
	return s.h.Value()
}

// IsEmpty reports whether the contents are the empty string.
func (s Str) IsEmpty() bool {
	return s.String() == ""
}

// MarshalJSON encodes the contents as a JSON string.
func (s Str) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON interns the decoded JSON string.
func (s *Str) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*s = New(v)
	return nil
}

// MarshalYAML encodes the contents as a YAML string.
func (s Str) MarshalYAML() (any, error) {
	return s.String(), nil
}

// UnmarshalYAML interns the decoded YAML string.
func (s *Str) UnmarshalYAML(unmarshal func(any) error) error {
	var v string
	if err := unmarshal(&v); err != nil {
		return err
	}
	*s = New(v)
	return nil
}
