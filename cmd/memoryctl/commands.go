package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"memory-filter/internal/domain"
	"memory-filter/internal/memoryapi"
	"memory-filter/internal/service"
)

func (a *app) client() (memoryapi.Client, error) {
	valves := a.cfg.Valves()
	if missing := valves.MissingSetting(); missing != "" {
		return nil, fmt.Errorf("memory service not configured: missing %s", missing)
	}
	return memoryapi.NewHTTPClient(valves.APIBaseURL, valves.APIKey,
		memoryapi.WithTimeouts(a.cfg.MemoryFetchTimeout, a.cfg.MemoryPostTimeout),
		memoryapi.WithLogger(a.logger),
	), nil
}

// readPayload lee un payload JSON de un archivo; "-" es stdin.
func readPayload(cmd *cobra.Command, path string) (*domain.Payload, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	var payload domain.Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse payload %s: %w", path, err)
	}
	return &payload, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newPairsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pairs <payload.json>",
		Short: "Print the user/assistant pairs extracted from a payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd, args[0])
			if err != nil {
				return err
			}
			pairs := service.ExtractPairs(payload.Messages)
			if pairs == nil {
				pairs = []domain.TurnPair{}
			}
			return printJSON(cmd, pairs)
		},
	}
}

func newFetchCmd(a *app) *cobra.Command {
	var userID, excludeChat string
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the stored memory of a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client()
			if err != nil {
				return err
			}
			memory, err := client.Fetch(cmd.Context(), userID, excludeChat)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), memory)
			return err
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user email")
	cmd.Flags().StringVar(&excludeChat, "exclude-chat", "", "chat id to leave out of the memory")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newSaveCmd(a *app) *cobra.Command {
	var userID, chatID string
	cmd := &cobra.Command{
		Use:   "save <payload.json>",
		Short: "Post the latest user/assistant pair of a payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd, args[0])
			if err != nil {
				return err
			}
			pair, ok := service.LatestPair(payload.Messages)
			if !ok {
				return errors.New("payload has no user/assistant pair")
			}
			if chatID == "" {
				chatID = payload.ChatID()
			}
			client, err := a.client()
			if err != nil {
				return err
			}
			if err := client.Post(cmd.Context(), userID, pair, chatID); err != nil {
				return err
			}
			return printJSON(cmd, domain.NewMemoryRecord(userID, pair, chatID))
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user email")
	cmd.Flags().StringVar(&chatID, "chat", "", "chat id (defaults to the payload's)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newInletCmd(a *app) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "inlet <payload.json>",
		Short: "Run the inlet hook on a payload and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd, args[0])
			if err != nil {
				return err
			}
			filter := service.NewMemoryFilter(a.logger, service.NewMemoryValvesStore(a.cfg.Valves()), func(v domain.Valves) memoryapi.Client {
				return memoryapi.NewHTTPClient(v.APIBaseURL, v.APIKey,
					memoryapi.WithTimeouts(a.cfg.MemoryFetchTimeout, a.cfg.MemoryPostTimeout),
					memoryapi.WithLogger(a.logger),
				)
			})
			inv := service.Invocation{
				User:   domain.User{Email: userID},
				ChatID: payload.ChatID(),
				Task:   payload.IsTask(),
				Status: service.NewLogStatusSink(a.logger),
			}
			return printJSON(cmd, filter.Inlet(cmd.Context(), inv, payload))
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user email")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newTokenCmd(a *app) *cobra.Command {
	var (
		email string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an identity token accepted by the filter API",
		RunE: func(cmd *cobra.Command, args []string) error {
			jwtSvc := service.NewJWTService(a.cfg.JWTSecret, ttl, a.cfg.JWTIssuer)
			if !jwtSvc.Enabled() {
				return errors.New("JWT_SECRET is not configured")
			}
			token, err := jwtSvc.Issue(domain.User{Email: email})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "user email")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
