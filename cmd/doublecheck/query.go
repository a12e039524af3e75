// Copyright 2025 The Doublecheck Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/doublecheck-agents/doublecheck/config"
)

// newQueryCommand builds the user-facing client: one-shot with --query, or
// an interactive prompt loop without it.
func newQueryCommand() *cobra.Command {
	var (
		managerURL string
		query      string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Send queries to the manager agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			if managerURL == "" {
				cfg, err := config.NewLoader(logger).Load()
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				managerURL = cfg.Manager.URL()
			}

			client := &queryClient{
				url:  strings.TrimSuffix(managerURL, "/") + "/api/query",
				http: &http.Client{Timeout: timeout},
			}

			if query != "" {
				return client.send(cmd.OutOrStdout(), query)
			}
			return client.interactive(cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&managerURL, "manager", "", "manager agent base URL (default from config)")
	cmd.Flags().StringVarP(&query, "query", "q", "", "query to send; omit for interactive mode")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "per-query timeout")

	return cmd
}

type queryClient struct {
	url  string
	http *http.Client
}

// send posts one query and prints the pipeline's response.
func (c *queryClient) send(out io.Writer, query string) error {
	body, err := sonic.ConfigFastest.Marshal(map[string]string{"query": query})
	if err != nil {
		return fmt.Errorf("marshal query: %w", err)
	}

	resp, err := c.http.Post(c.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("query manager at %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var parsed struct {
		Response string `json:"response"`
		Error    string `json:"error"`
	}
	if err := sonic.ConfigFastest.Unmarshal(respBody, &parsed); err != nil {
		return fmt.Errorf("unexpected response (status %d): %s", resp.StatusCode, respBody)
	}
	if parsed.Error != "" {
		return fmt.Errorf("manager error: %s", parsed.Error)
	}

	fmt.Fprintln(out, parsed.Response)
	return nil
}

// interactive reads queries line by line until EOF or "exit".
func (c *queryClient) interactive(in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Enter queries, one per line. Type \"exit\" or press Ctrl-D to quit.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			break
		}

		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}
		if query == "exit" || query == "quit" {
			break
		}

		if err := c.send(out, query); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		fmt.Fprintln(out)
	}
	return scanner.Err()
}
