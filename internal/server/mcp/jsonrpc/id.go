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

package jsonrpc

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// RequestId is a uniquely identifying ID for a request in JSON-RPC.
// Per the JSON-RPC 2.0 spec it is either a string or an integer; it
// round-trips through JSON without loss so both peers agree on
// correlation. The zero value is the absent id (notifications).
type RequestId struct {
	str   string
	num   int64
	isNum bool
	set   bool
}

// NewStringId returns a RequestId holding a string value.
func NewStringId(s string) RequestId {
	return RequestId{str: s, set: true}
}

// NewNumericId returns a RequestId holding an integer value.
func NewNumericId(n int64) RequestId {
	return RequestId{num: n, isNum: true, set: true}
}

// IsSet reports whether the id carries a value. Notifications have no id.
func (id RequestId) IsSet() bool { return id.set }

// IsNumeric reports whether the id holds an integer value.
func (id RequestId) IsNumeric() bool { return id.isNum }

// Num returns the integer value. Only meaningful when IsNumeric is true.
func (id RequestId) Num() int64 { return id.num }

// Str returns the string value. Only meaningful when IsNumeric is false.
func (id RequestId) Str() string { return id.str }

// String renders the id for logging and map keys. String and numeric ids
// never collide: string ids are quoted.
func (id RequestId) String() string {
	if !id.set {
		return "<nil>"
	}
	if id.isNum {
		return strconv.FormatInt(id.num, 10)
	}
	return strconv.Quote(id.str)
}

// MarshalJSON implements json.Marshaler. An unset id marshals as null,
// which only occurs when echoing a parse-error response.
func (id RequestId) MarshalJSON() ([]byte, error) {
	if !id.set {
		return []byte("null"), nil
	}
	if id.isNum {
		return strconv.AppendInt(nil, id.num, 10), nil
	}
	return json.Marshal(id.str)
}

// UnmarshalJSON implements json.Unmarshaler. Fractional numbers are not
// valid JSON-RPC ids and are rejected.
func (id *RequestId) UnmarshalJSON(data []byte) error {
	var v any
	d := json.NewDecoder(bytesReader(data))
	d.UseNumber()
	if err := d.Decode(&v); err != nil {
		return err
	}
	switch val := v.(type) {
	case nil:
		*id = RequestId{}
		return nil
	case string:
		*id = NewStringId(val)
		return nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return fmt.Errorf("invalid request id %q: not an integer", val.String())
		}
		*id = NewNumericId(n)
		return nil
	default:
		return fmt.Errorf("invalid request id: must be a string or an integer")
	}
}
