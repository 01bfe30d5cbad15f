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

package mcp

import (
	"encoding/json"
	"fmt"
)

// ContentType discriminates the Content union on the wire.
type ContentType string

const (
	ContentTypeText     ContentType = "text"
	ContentTypeBlob     ContentType = "blob"
	ContentTypeResource ContentType = "resource"
)

// Content is the tagged union carried in tool results and resource reads:
// text, base64 blob, or a resource reference. Exactly one variant is
// populated, chosen by Type.
type Content struct {
	Type ContentType

	// Text is set for ContentTypeText.
	Text string

	// Data holds base64 payload bytes and MimeType its media type, for
	// ContentTypeBlob.
	Data     string
	MimeType MimeType

	// Resource references a server resource for ContentTypeResource.
	Uri Uri
}

// NewTextContent returns a text content item.
func NewTextContent(text string) Content {
	return Content{Type: ContentTypeText, Text: text}
}

// NewBlobContent returns a blob content item. Data must already be base64.
func NewBlobContent(data string, mimeType MimeType) Content {
	return Content{Type: ContentTypeBlob, Data: data, MimeType: mimeType}
}

// NewResourceContent returns a resource-reference content item.
func NewResourceContent(uri Uri, mimeType MimeType) Content {
	return Content{Type: ContentTypeResource, Uri: uri, MimeType: mimeType}
}

type textContentWire struct {
	Type ContentType `json:"type"`
	Text string      `json:"text"`
}

type blobContentWire struct {
	Type     ContentType `json:"type"`
	Data     string      `json:"data"`
	MimeType MimeType    `json:"mimeType,omitempty"`
}

type resourceContentWire struct {
	Type     ContentType `json:"type"`
	Uri      Uri         `json:"uri"`
	MimeType MimeType    `json:"mimeType,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (c Content) MarshalJSON() ([]byte, error) {
	switch c.Type {
	case ContentTypeText:
		return json.Marshal(textContentWire{Type: c.Type, Text: c.Text})
	case ContentTypeBlob:
		return json.Marshal(blobContentWire{Type: c.Type, Data: c.Data, MimeType: c.MimeType})
	case ContentTypeResource:
		return json.Marshal(resourceContentWire{Type: c.Type, Uri: c.Uri, MimeType: c.MimeType})
	default:
		return nil, fmt.Errorf("unknown content type %q", c.Type)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Content) UnmarshalJSON(data []byte) error {
	var head struct {
		Type ContentType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	switch head.Type {
	case ContentTypeText:
		var w textContentWire
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}
		*c = Content{Type: w.Type, Text: w.Text}
		return nil
	case ContentTypeBlob:
		var w blobContentWire
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}
		*c = Content{Type: w.Type, Data: w.Data, MimeType: w.MimeType}
		return nil
	case ContentTypeResource:
		var w resourceContentWire
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}
		*c = Content{Type: w.Type, Uri: w.Uri, MimeType: w.MimeType}
		return nil
	default:
		return fmt.Errorf("unknown content type %q", head.Type)
	}
}
