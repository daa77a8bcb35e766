// Command plebchat is a terminal client for the PlebChat agent server.
//
// Usage:
//
//	plebchat agents             list the served agents
//	plebchat health             check the server
//	plebchat chat [--agent id]  chat with an agent
//	plebchat runs [--limit n]   show recent runs
//
// The server address comes from --backend or BACKEND_URL.
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"plebchat/internal/client"
	"plebchat/internal/form"
	"plebchat/internal/schema"
	"plebchat/internal/session"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "plebchat",
		Short:         "Chat with PlebChat agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("backend", "", "server URL (default $BACKEND_URL or "+client.DefaultBaseURL+")")

	rootCmd.AddCommand(newAgentsCommand())
	rootCmd.AddCommand(newHealthCommand())
	rootCmd.AddCommand(newChatCommand())
	rootCmd.AddCommand(newRunsCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func clientFor(cmd *cobra.Command) *client.Client {
	backend, _ := cmd.Flags().GetString("backend")
	if backend != "" {
		return client.New(backend)
	}
	return client.FromEnv()
}

func newAgentsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List the served agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := clientFor(cmd).Agents(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tVERSION\tINFO")
			for _, a := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.Data.ID, a.Data.Name, a.Data.Version, a.Data.Info)
			}
			return w.Flush()
		},
	}
}

func newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the server is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := clientFor(cmd)
			if err := c.Health(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s ok\n", c.BaseURL())
			return nil
		},
	}
}

func newRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := clientFor(cmd).Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STARTED\tAGENT\tSTATUS\tELAPSED\tID")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.AgentID, r.Status,
					r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond), r.ID)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "number of runs to show")
	return cmd
}

func newChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with an agent",
		Long: `Chat with an agent. Each line is sent as the query; the other input
fields keep their defaults. In-chat commands:

  :agent [id]   list agents or switch to one
  :config       edit the current agent's configuration
  :form         fill the whole input form before sending
  :history      show the conversation
  :reset        clear the conversation
  :quit         leave`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			agentID, _ := cmd.Flags().GetString("agent")
			verbose, _ := cmd.Flags().GetBool("verbose")
			if os.Getenv("DEBUG") != "" {
				verbose = true
			}
			return runChat(cmd.Context(), clientFor(cmd), agentID, verbose, cmd)
		},
	}
	cmd.Flags().StringP("agent", "a", "", "agent id (default: first listed)")
	cmd.Flags().BoolP("verbose", "v", false, "show step data")
	return cmd
}

func runChat(ctx context.Context, c *client.Client, agentID string, verbose bool, cmd *cobra.Command) error {
	list, err := c.Agents(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch agents: %w", err)
	}
	cache, err := schema.NewCache(schema.DefaultCacheSize)
	if err != nil {
		return err
	}
	state, err := session.New(list, cache)
	if err != nil {
		return err
	}
	if agentID != "" {
		if err := state.Select(agentID); err != nil {
			return err
		}
	}
	loop := &chatLoop{
		client:   c,
		state:    state,
		prompter: form.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout()),
		out:      cmd.OutOrStdout(),
		verbose:  verbose,
		styles:   form.NewStyles(form.DefaultTheme),
	}
	return loop.run(ctx)
}
