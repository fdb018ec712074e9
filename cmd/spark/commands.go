package main

import (
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pewpi-infinity/spark/internal/analytics"
	"github.com/pewpi-infinity/spark/internal/api"
	"github.com/pewpi-infinity/spark/internal/model"
	"github.com/pewpi-infinity/spark/internal/publish"
	"github.com/pewpi-infinity/spark/internal/search"
	"github.com/pewpi-infinity/spark/internal/workflow"
)

// call sends one request to the server and decodes the response into out.
func call(cmd *cobra.Command, method, path string, body, out any) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}
	return client.fetch(cmd.Context(), method, path, body, out)
}

func printToken(w io.Writer, t model.Token) {
	mark := ""
	if t.Promoted {
		mark = colorize(colorGreen, " [promoted]")
	}
	fmt.Fprintf(w, "%s  %s  %s%s\n",
		colorize(colorCyan, t.ID),
		time.UnixMilli(t.Timestamp).Format("2006-01-02 15:04"),
		truncate(t.Query, 60),
		mark,
	)
}

func printPage(w io.Writer, p model.BuildPage) {
	status := string(p.State.Status())
	fmt.Fprintf(w, "%s  %-14s  %s\n",
		colorize(colorCyan, p.ID),
		colorize(statusColor(status), status),
		truncate(p.Title, 60),
	)
	if u := p.State.URL(); u != "" {
		fmt.Fprintf(w, "    %s\n", u)
	}
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Generate content for a query and mint a token",
	Long: `Generate content for a query and mint a token.

Examples:
  spark search "history of jazz"
  spark search --mode brief --context "for a school report" quantum computing`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := api.SearchRequest{Query: strings.Join(args, " ")}
		req.Context, _ = cmd.Flags().GetString("context")
		req.Mode, _ = cmd.Flags().GetString("mode")

		printStep("Generating content for %q...", req.Query)
		var res api.SearchResponse
		if err := call(cmd, "POST", "/search", req, &res); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s\n\n", colorize(colorBold, res.Token.ID))
		fmt.Fprintln(w, res.Result.Content)
		if len(res.Result.Tags) > 0 {
			fmt.Fprintf(w, "\n%s %s\n", colorize(colorDim, "tags:"), strings.Join(res.Result.Tags, ", "))
		}
		printSuccess("Minted %s. Promote it with: spark promote %s --structure knowledge", res.Token.ID, res.Token.ID)
		return nil
	},
}

func init() {
	searchCmd.Flags().String("context", "", "extra context for the generator")
	searchCmd.Flags().String("mode", "", "generation mode hint")
}

// --- tokens ---

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "List and inspect minted tokens",
}

var tokensListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tokens, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if n, _ := cmd.Flags().GetInt("limit"); n > 0 {
			q.Set("limit", strconv.Itoa(n))
		}
		if cmd.Flags().Changed("promoted") {
			v, _ := cmd.Flags().GetBool("promoted")
			q.Set("promoted", strconv.FormatBool(v))
		}

		var tokens []model.Token
		if err := call(cmd, "GET", withQuery("/tokens", q), nil, &tokens); err != nil {
			return err
		}
		if len(tokens) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No tokens found.")
			return nil
		}
		for _, t := range tokens {
			printToken(cmd.OutOrStdout(), t)
		}
		return nil
	},
}

var tokensShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single token as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var tok model.Token
		if err := call(cmd, "GET", "/tokens/"+url.PathEscape(args[0]), nil, &tok); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), tok)
	},
}

func init() {
	tokensListCmd.Flags().Int("limit", 20, "maximum number of tokens to list")
	tokensListCmd.Flags().Bool("promoted", false, "only promoted (true) or unpromoted (false) tokens")
	tokensCmd.AddCommand(tokensListCmd)
	tokensCmd.AddCommand(tokensShowCmd)
}

// --- promote ---

var promoteCmd = &cobra.Command{
	Use:   "promote <token-id>",
	Short: "Promote a token into a draft page",
	Long: `Promote a token into a draft page.

Structures: blank, knowledge, business, tool, multipage.
Features: charts, images, audio, video, files, widgets, navigation, monetization.

Examples:
  spark promote INF-123 --structure knowledge
  spark promote INF-123 --structure business --title "Jazz History" --toggle monetization`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := api.PromoteRequest{}
		req.Structure, _ = cmd.Flags().GetString("structure")
		req.Title, _ = cmd.Flags().GetString("title")
		req.Toggle, _ = cmd.Flags().GetStringSlice("toggle")
		if req.Structure == "" {
			return fmt.Errorf("--structure is required")
		}

		var page model.BuildPage
		if err := call(cmd, "POST", "/tokens/"+url.PathEscape(args[0])+"/promote", req, &page); err != nil {
			return err
		}
		printPage(cmd.OutOrStdout(), page)
		if f := page.Features.Enabled(); len(f) > 0 {
			printStatus("Features", "%s", strings.Join(f, ", "))
		}
		printSuccess("Created %s. Publish it with: spark publish %s", page.ID, page.ID)
		return nil
	},
}

func init() {
	promoteCmd.Flags().String("structure", "", "page structure (required)")
	promoteCmd.Flags().String("title", "", "page title (default: the token's query)")
	promoteCmd.Flags().StringSlice("toggle", nil, "flip a feature of the structure preset (repeatable)")
}

// --- expand ---

var expandCmd = &cobra.Command{
	Use:   "expand <token-id> <query>",
	Short: "Generate a follow-up page for an existing token",
	Long: `Generate content for a follow-up query and add it to an existing token as
another draft page. The token keeps its original query and content.

Examples:
  spark expand INF-123 jazz in Europe --structure knowledge
  spark expand INF-123 "bebop era" --structure blank --title "Bebop"`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := api.ExpandRequest{Query: strings.Join(args[1:], " ")}
		req.Context, _ = cmd.Flags().GetString("context")
		req.Mode, _ = cmd.Flags().GetString("mode")
		req.Structure, _ = cmd.Flags().GetString("structure")
		req.Title, _ = cmd.Flags().GetString("title")
		req.Toggle, _ = cmd.Flags().GetStringSlice("toggle")
		if req.Structure == "" {
			return fmt.Errorf("--structure is required")
		}

		var page model.BuildPage
		if err := call(cmd, "POST", "/tokens/"+url.PathEscape(args[0])+"/expand", req, &page); err != nil {
			return err
		}
		printPage(cmd.OutOrStdout(), page)
		printSuccess("Added %s to %s. Publish it with: spark publish %s", page.ID, page.TokenID, page.ID)
		return nil
	},
}

func init() {
	expandCmd.Flags().String("structure", "", "page structure (required)")
	expandCmd.Flags().String("title", "", "page title (default: the follow-up query)")
	expandCmd.Flags().StringSlice("toggle", nil, "flip a feature of the structure preset (repeatable)")
	expandCmd.Flags().String("context", "", "extra context for the generator")
	expandCmd.Flags().String("mode", "", "generation mode hint")
}

// --- pages ---

var pagesCmd = &cobra.Command{
	Use:   "pages",
	Short: "List, inspect and edit pages",
}

var pagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pages, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if n, _ := cmd.Flags().GetInt("limit"); n > 0 {
			q.Set("limit", strconv.Itoa(n))
		}
		if s, _ := cmd.Flags().GetString("status"); s != "" {
			q.Set("status", s)
		}

		var pages []model.BuildPage
		if err := call(cmd, "GET", withQuery("/pages", q), nil, &pages); err != nil {
			return err
		}
		if len(pages) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No pages found.")
			return nil
		}
		for _, p := range pages {
			printPage(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

var pagesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single page as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var page model.BuildPage
		if err := call(cmd, "GET", "/pages/"+url.PathEscape(args[0]), nil, &page); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), page)
	},
}

var pagesEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Replace a page's content or tags",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("content") && !cmd.Flags().Changed("tags") {
			return fmt.Errorf("one of --content or --tags is required")
		}
		var edit workflow.PageEdit
		if cmd.Flags().Changed("content") {
			c, _ := cmd.Flags().GetString("content")
			edit.Content = &c
		}
		edit.Tags, _ = cmd.Flags().GetStringSlice("tags")

		var page model.BuildPage
		if err := call(cmd, "POST", "/pages/"+url.PathEscape(args[0])+"/edit", edit, &page); err != nil {
			return err
		}
		printSuccess("Updated %s", page.ID)
		return nil
	},
}

func init() {
	pagesListCmd.Flags().Int("limit", 20, "maximum number of pages to list")
	pagesListCmd.Flags().String("status", "", "only pages in this state (draft, awaiting-build, published)")
	pagesEditCmd.Flags().String("content", "", "new page content")
	pagesEditCmd.Flags().StringSlice("tags", nil, "new comma-separated tag list")
	pagesCmd.AddCommand(pagesListCmd)
	pagesCmd.AddCommand(pagesShowCmd)
	pagesCmd.AddCommand(pagesEditCmd)
}

// --- publish / verify ---

var publishCmd = &cobra.Command{
	Use:   "publish <page-id>",
	Short: "Render and deliver a page to the site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var res publish.Result
		if err := call(cmd, "POST", "/pages/"+url.PathEscape(args[0])+"/publish", nil, &res); err != nil {
			return err
		}
		printStatus("URL", "%s", res.URL)
		printStatus("Strategy", "%s", res.Strategy)
		printStatus("Commit", "%s", res.CommitRef)
		if res.Status == string(model.StatusPublished) {
			printSuccess("%s is live", res.Page.ID)
		} else {
			printWarning("%s is awaiting the site build; it is re-checked automatically, or run: spark verify %s", res.Page.ID, res.Page.ID)
		}
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify [page-id]",
	Short: "Check whether published pages are live",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if all == (len(args) == 1) {
			return fmt.Errorf("pass a page id or --all")
		}

		var pages []model.BuildPage
		if all {
			if err := call(cmd, "POST", "/pages/verify", nil, &pages); err != nil {
				return err
			}
			if len(pages) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No pages awaiting build.")
				return nil
			}
		} else {
			var page model.BuildPage
			if err := call(cmd, "POST", "/pages/"+url.PathEscape(args[0])+"/verify", nil, &page); err != nil {
				return err
			}
			pages = append(pages, page)
		}
		for _, p := range pages {
			printPage(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().Bool("all", false, "verify every page awaiting build")
}

// --- find ---

var findCmd = &cobra.Command{
	Use:   "find [query]",
	Short: "Search stored tokens and pages",
	Long: `Search stored tokens and pages. Without a query every record that passes
the filters is listed, newest first.

Examples:
  spark find quantum
  spark find --type pages --from 2024-01-01 technology
  spark find --type tokens --promoted=false`,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if len(args) > 0 {
			q.Set("q", strings.Join(args, " "))
		}
		if t, _ := cmd.Flags().GetString("type"); t != "" {
			if _, err := search.ParseType(t); err != nil {
				return err
			}
			q.Set("type", t)
		}
		if cmd.Flags().Changed("promoted") {
			v, _ := cmd.Flags().GetBool("promoted")
			q.Set("promoted", strconv.FormatBool(v))
		}
		for _, name := range []string{"from", "to"} {
			s, _ := cmd.Flags().GetString(name)
			if s == "" {
				continue
			}
			ms, err := parseBound(s, name == "to")
			if err != nil {
				return fmt.Errorf("--%s: %w", name, err)
			}
			q.Set(name, strconv.FormatInt(ms, 10))
		}
		if n, _ := cmd.Flags().GetInt("limit"); n > 0 {
			q.Set("limit", strconv.Itoa(n))
		}
		if track, _ := cmd.Flags().GetBool("track"); track {
			q.Set("track", "true")
		}

		var items []search.Item
		if err := call(cmd, "GET", withQuery("/find", q), nil, &items); err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No results found.")
			return nil
		}
		w := cmd.OutOrStdout()
		for _, it := range items {
			fmt.Fprintf(w, "%s ", colorize(colorDim, fmt.Sprintf("%3d", it.Score)))
			if it.Token != nil {
				printToken(w, *it.Token)
			} else {
				printPage(w, *it.Page)
			}
		}
		return nil
	},
}

// parseBound reads a date (2006-01-02) or RFC 3339 time as epoch milliseconds.
// A bare date used as an upper bound covers the whole day.
func parseBound(s string, upper bool) (int64, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UnixMilli(), nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: use YYYY-MM-DD or RFC 3339", s)
	}
	if upper {
		t = t.AddDate(0, 0, 1).Add(-time.Millisecond)
	}
	return t.UnixMilli(), nil
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

func init() {
	findCmd.Flags().String("type", "", "all, tokens or pages")
	findCmd.Flags().Bool("promoted", false, "only promoted (true) or unpromoted (false) tokens")
	findCmd.Flags().String("from", "", "only records at or after this time")
	findCmd.Flags().String("to", "", "only records at or before this time")
	findCmd.Flags().Int("limit", 20, "maximum number of results")
	findCmd.Flags().Bool("track", false, "count the listed tokens as searched")
}

// --- leaderboard ---

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Rank tokens by the pages built from them",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("limit")

		var board []analytics.Entry
		if err := call(cmd, "GET", fmt.Sprintf("/leaderboard?limit=%d", n), nil, &board); err != nil {
			return err
		}
		if len(board) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No tokens yet.")
			return nil
		}
		w := cmd.OutOrStdout()
		for _, e := range board {
			fmt.Fprintf(w, "%s  %s  %s pts  %d pages  %s views  %s\n",
				colorize(colorBold, fmt.Sprintf("#%-3d", e.Rank)),
				colorize(colorCyan, e.Token.ID),
				analytics.FormatNumber(e.Value),
				e.PageCount,
				analytics.FormatNumber(e.TotalViews),
				truncate(e.Token.Query, 40),
			)
		}
		return nil
	},
}

func init() {
	leaderboardCmd.Flags().Int("limit", 10, "number of entries (max 100)")
}
