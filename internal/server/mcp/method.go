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

// MCP method names dispatched by the request handler.
const (
	MethodInitialize            = "initialize"
	MethodPing                  = "ping"
	MethodResourcesList         = "resources/list"
	MethodResourcesTemplates    = "resources/templates/list"
	MethodResourcesRead         = "resources/read"
	MethodResourcesSubscribe    = "resources/subscribe"
	MethodResourcesUnsubscribe  = "resources/unsubscribe"
	MethodToolsList             = "tools/list"
	MethodToolsCall             = "tools/call"
	MethodPromptsList           = "prompts/list"
	MethodPromptsGet            = "prompts/get"
	MethodLoggingSetLevel       = "logging/setLevel"
	MethodNotifyInitialized    = "notifications/initialized"
	NotifyResourcesListChanged = "notifications/resources/list_changed"
	NotifyResourcesUpdated     = "notifications/resources/updated"
	NotifyToolsListChanged     = "notifications/tools/list_changed"
	NotifyPromptsListChanged   = "notifications/prompts/list_changed"
	NotifyLoggingMessage       = "notifications/message"
)
