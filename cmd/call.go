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

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/airsstack/airs-mcp/internal/client"
	"github.com/airsstack/airs-mcp/internal/log"
	"github.com/airsstack/airs-mcp/internal/server/mcp"
)

// newCallCmd builds the `call` subcommand: a one-shot client that
// initializes against a remote server and invokes one tool. Connection
// defaults come from MCP_SERVER_URL, MCP_API_KEY, and MCP_TIMEOUT.
func newCallCmd(root *Command) *cobra.Command {
	var serverUrl, apiKey, argsJson string

	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Invoke a tool on a remote MCP server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			envCfg, envTimeout := client.HttpConfigFromEnv()
			if serverUrl != "" {
				envCfg.ServerUrl = serverUrl
			}
			if apiKey != "" {
				envCfg.ApiKey = apiKey
			}

			var toolArgs map[string]any
			if argsJson != "" {
				if err := json.Unmarshal([]byte(argsJson), &toolArgs); err != nil {
					return fmt.Errorf("unable to parse --args: %w", err)
				}
			}

			logger, err := log.NewStdLogger(root.errStream, root.errStream, root.cfg.LogLevel.String())
			if err != nil {
				return err
			}

			c, err := client.NewHttpClient(client.Config{
				ClientInfo:     mcp.Implementation{Name: "airs-mcp-cli", Version: versionString},
				RequestTimeout: envTimeout,
			}, envCfg, logger)
			if err != nil {
				return err
			}
			ctx := cobraCmd.Context()
			defer c.Close(ctx)

			if _, err := c.Initialize(ctx); err != nil {
				return fmt.Errorf("initialize failed: %w", err)
			}
			result, err := c.CallTool(ctx, args[0], toolArgs)
			if err != nil {
				return fmt.Errorf("tool call failed: %w", err)
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(root.outStream, string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&serverUrl, "server-url", "", "MCP endpoint url. Defaults to MCP_SERVER_URL.")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key. Defaults to MCP_API_KEY.")
	cmd.Flags().StringVar(&argsJson, "args", "", "Tool arguments as a JSON object.")
	return cmd
}
