package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/deploymenttheory/go-api-session-client/httpclient"
	"github.com/spf13/cobra"
)

func newLoginCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in and save the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := a.logger()
			defer func() { _ = log.Sync() }()

			provider, closeStore, err := a.session(cmd.Context(), log)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()
			if err := provider.Login(cmd.Context(), a.credentials()); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Logged in")
			if expiry, ok := provider.Expiry(); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "Token expires %s\n", expiry.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newLogoutCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Invalidate the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := a.logger()
			defer func() { _ = log.Sync() }()

			provider, closeStore, err := a.session(cmd.Context(), log)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()
			if !provider.IsAuthenticated() {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
				return nil
			}
			if err := provider.Logout(cmd.Context()); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a session is saved",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := a.logger()
			defer func() { _ = log.Sync() }()

			provider, closeStore, err := a.session(cmd.Context(), log)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "authenticated: %t\n", provider.IsAuthenticated())
			if expiry, ok := provider.Expiry(); ok {
				state := "valid"
				if time.Now().After(expiry) {
					state = "expired"
				}
				fmt.Fprintf(out, "expires: %s (%s)\n", expiry.Format(time.RFC3339), state)
			}
			return nil
		},
	}
}

func newRequestCommand(a *app) *cobra.Command {
	var (
		data    string
		output  string
		include bool
	)

	cmd := &cobra.Command{
		Use:   "request METHOD PATH",
		Short: "Send an authenticated request",
		Long: `Send an authenticated request with the saved session. An expired token is refreshed
once and the request replayed. The response body is written to stdout.

Examples:
  sessionctl request GET /api/v1/widgets
  sessionctl request POST /api/v1/widgets --data '{"name":"gear"}'
  sessionctl request POST /api/v1/widgets --data @widget.json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := a.logger()
			defer func() { _ = log.Sync() }()

			config, err := a.clientConfig()
			if err != nil {
				return err
			}
			provider, closeStore, err := a.session(cmd.Context(), log)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()
			client, err := httpclient.BuildClient(*config, provider, true, httpclient.WithLogger(log))
			if err != nil {
				return err
			}

			var body any
			if data != "" {
				payload, err := readData(data)
				if err != nil {
					return err
				}
				body = payload
			}

			resp, respBody, err := client.Request(cmd.Context(), args[0], args[1], body)
			if err != nil {
				if len(respBody) > 0 {
					fmt.Fprintln(cmd.ErrOrStderr(), string(respBody))
				}
				return fmt.Errorf("%s: %w", httpclient.Classify(err), err)
			}

			if include {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n\n", resp.Proto, resp.Status)
			}
			if output != "" {
				return os.WriteFile(output, respBody, 0o600)
			}
			_, err = cmd.OutOrStdout().Write(respBody)
			return err
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "Request body, or @file to read it from a file")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the response body to a file")
	cmd.Flags().BoolVarP(&include, "include", "i", false, "Print the response status line")
	return cmd
}

func readData(data string) ([]byte, error) {
	if path, ok := strings.CutPrefix(data, "@"); ok {
		payload, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading request body: %w", err)
		}
		return payload, nil
	}
	return []byte(data), nil
}
