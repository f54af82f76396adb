package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/rolo/internal/api"
	"github.com/kalambet/rolo/internal/config"
	"github.com/kalambet/rolo/internal/storage"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about your contacts",
	Long: `Ask a question about your contacts.

Examples:
  rolo ask who works at Acme
  rolo ask "Кто у меня есть из HR?"
  rolo ask '#investor'
  rolo ask --each "Ivan Petrov" "contacts at Acme"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		each, _ := cmd.Flags().GetBool("each")
		verbose, _ := cmd.Flags().GetBool("verbose")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if each {
			return runAskBatch(cmd.Context(), client, args, os.Stdout, verbose)
		}
		return runAsk(cmd.Context(), client, strings.Join(args, " "), os.Stdout, verbose)
	},
}

func init() {
	askCmd.Flags().Bool("each", false, "treat every argument as a separate question")
	askCmd.Flags().BoolP("verbose", "v", false, "show how each question was interpreted")
}

func runAsk(ctx context.Context, c *apiClient, query string, w io.Writer, verbose bool) error {
	var result api.AskResponse
	if err := c.call(ctx, http.MethodPost, "/v1/ask", api.AskRequest{Query: query}, &result); err != nil {
		return err
	}
	printAnswer(w, result, verbose)
	return nil
}

func runAskBatch(ctx context.Context, c *apiClient, queries []string, w io.Writer, verbose bool) error {
	var result api.BatchResponse
	if err := c.call(ctx, http.MethodPost, "/v1/ask/batch", api.BatchRequest{Queries: queries}, &result); err != nil {
		return err
	}
	for i, r := range result.Results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, colorize(colorBold, "> "+r.Query))
		printAnswer(w, r, verbose)
	}
	return nil
}

func printAnswer(w io.Writer, r api.AskResponse, verbose bool) {
	if verbose {
		fmt.Fprintf(w, "%s %s %v, %d matched, %s\n",
			colorize(colorCyan, "intent:"), r.Intent, r.Terms, r.Matched, r.Outcome)
	}
	fmt.Fprintln(w, r.Answer)
}

// --- find ---

var findCmd = &cobra.Command{
	Use:   "find [query]",
	Short: "Search contacts without generating an answer",
	Long: `Search contacts without generating an answer. With no query, lists the
most recent contacts.

Examples:
  rolo find
  rolo find contacts at Acme
  rolo find '#investor' --limit 5`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runFind(cmd.Context(), client, strings.Join(args, " "), limit, os.Stdout)
	},
}

func init() {
	findCmd.Flags().Int("limit", 20, "maximum number of contacts to print")
}

func runFind(ctx context.Context, c *apiClient, query string, limit int, w io.Writer) error {
	params := url.Values{}
	if query != "" {
		params.Set("q", query)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/contacts"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var result api.ContactsResponse
	if err := c.call(ctx, http.MethodGet, path, nil, &result); err != nil {
		return err
	}

	if len(result.Contacts) == 0 {
		fmt.Fprintln(w, "No contacts found.")
		return nil
	}

	for i, ct := range result.Contacts {
		fmt.Fprintf(w, "%s %s\n", colorize(colorBold, fmt.Sprintf("%d.", i+1)), contactLine(ct))
	}
	if hidden := result.Total - len(result.Contacts); hidden > 0 {
		fmt.Fprintf(w, "... and %d more\n", hidden)
	}
	return nil
}

func contactLine(c storage.Contact) string {
	var sb strings.Builder
	sb.WriteString(c.Name)
	var role []string
	if c.Company != "" {
		role = append(role, c.Company)
	}
	if c.Position != "" {
		role = append(role, c.Position)
	}
	if len(role) > 0 {
		fmt.Fprintf(&sb, " (%s)", strings.Join(role, ", "))
	}
	if len(c.Tags) > 0 {
		fmt.Fprintf(&sb, " [%s]", strings.Join(c.Tags, ", "))
	}
	if c.Telegram != "" {
		fmt.Fprintf(&sb, " @%s", strings.TrimPrefix(c.Telegram, "@"))
	}
	return sb.String()
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show contact book statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runStats(cmd.Context(), client, os.Stdout)
	},
}

func runStats(ctx context.Context, c *apiClient, w io.Writer) error {
	var st api.StatsResponse
	if err := c.call(ctx, http.MethodGet, "/v1/stats", nil, &st); err != nil {
		return err
	}

	fmt.Fprintf(w, "Contacts:         %d\n", st.Contacts)
	fmt.Fprintf(w, "Interactions:     %d\n", st.Interactions)
	fmt.Fprintf(w, "Unique tags:      %d\n", st.UniqueTags)
	fmt.Fprintf(w, "Avg interactions: %.1f\n", st.AvgInteractions)
	return nil
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "("+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so the default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}

		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}
