package main

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pewpi-infinity/spark/internal/api"
	"github.com/pewpi-infinity/spark/internal/config"
	"github.com/pewpi-infinity/spark/internal/publish"
	"github.com/pewpi-infinity/spark/internal/site"
)

// --- files / export ---

var filesCmd = &cobra.Command{
	Use:   "files <page-id>",
	Short: "Download the rendered files of a page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var files []publish.File
		if err := call(cmd, "GET", "/pages/"+url.PathEscape(args[0])+"/files", nil, &files); err != nil {
			return err
		}
		return emitFiles(cmd, files)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download the rendered files of every published page",
	RunE: func(cmd *cobra.Command, args []string) error {
		var files []publish.File
		if err := call(cmd, "GET", "/export", nil, &files); err != nil {
			return err
		}
		if len(files) == 0 {
			printWarning("No published pages to export")
			return nil
		}
		return emitFiles(cmd, files)
	},
}

// emitFiles writes files under --dir, or lists them when --dir is unset.
func emitFiles(cmd *cobra.Command, files []publish.File) error {
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		for _, f := range files {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", f.Path, colorize(colorDim, fmt.Sprintf("%d bytes", len(f.Content))))
		}
		return nil
	}
	if err := writeFiles(dir, files); err != nil {
		return err
	}
	printSuccess("Wrote %d files to %s", len(files), dir)
	return nil
}

// writeFiles writes each file at its relative path under dir.
func writeFiles(dir string, files []publish.File) error {
	for _, f := range files {
		rel := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(f.Path, "/")))
		if rel == "." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || rel == ".." {
			return fmt.Errorf("refusing to write %q outside %s", f.Path, dir)
		}
		dst := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(dst), err)
		}
		if err := os.WriteFile(dst, []byte(f.Content), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", dst, err)
		}
	}
	return nil
}

func init() {
	filesCmd.Flags().String("dir", "", "write the files under this directory")
	exportCmd.Flags().String("dir", "", "write the files under this directory")
}

// --- site ---

var siteCmd = &cobra.Command{
	Use:   "site",
	Short: "Show or update the site configuration",
}

var siteShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the site configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		var cfg site.Config
		if err := call(cmd, "GET", "/site", nil, &cfg); err != nil {
			return err
		}
		printSite(cmd.OutOrStdout(), cfg)
		return nil
	},
}

// siteFields maps site set keys onto Patch fields.
var siteFields = map[string]func(*site.Patch, *string){
	"site_name":   func(p *site.Patch, v *string) { p.SiteName = v },
	"owner_name":  func(p *site.Patch, v *string) { p.OwnerName = v },
	"github_user": func(p *site.Patch, v *string) { p.GitHubUser = v },
	"repo_name":   func(p *site.Patch, v *string) { p.RepoName = v },
	"pages_root":  func(p *site.Patch, v *string) { p.PagesRoot = v },
}

var siteSetCmd = &cobra.Command{
	Use:   "set <key>=<value>...",
	Short: "Update site fields (site_name, owner_name, github_user, repo_name, pages_root)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := parseSitePatch(args)
		if err != nil {
			return err
		}
		var cfg site.Config
		if err := call(cmd, "PATCH", "/site", patch, &cfg); err != nil {
			return err
		}
		printSite(cmd.OutOrStdout(), cfg)
		printSuccess("Site updated")
		return nil
	},
}

func parseSitePatch(args []string) (site.Patch, error) {
	var p site.Patch
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return site.Patch{}, fmt.Errorf("expected key=value, got %q", arg)
		}
		set, ok := siteFields[key]
		if !ok {
			return site.Patch{}, fmt.Errorf("unknown site field %q", key)
		}
		set(&p, &value)
	}
	return p, nil
}

func printSite(w io.Writer, cfg site.Config) {
	for _, kv := range [][2]string{
		{"site_name", cfg.SiteName},
		{"owner_name", cfg.OwnerName},
		{"github_user", cfg.GitHubUser},
		{"repo_name", cfg.RepoName},
		{"pages_root", cfg.PagesRoot},
		{"base_url", cfg.BaseURL},
	} {
		fmt.Fprintf(w, "  %s = %s\n", colorize(colorBold, kv[0]), kv[1])
	}
}

func init() {
	siteCmd.AddCommand(siteShowCmd)
	siteCmd.AddCommand(siteSetCmd)
}

// --- credential ---

var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Manage the GitHub publishing credential",
}

var credentialSetCmd = &cobra.Command{
	Use:   "set [token]",
	Short: "Store the GitHub token (read from stdin when omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var token string
		if len(args) == 1 {
			token = args[0]
		} else {
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && err != io.EOF {
				return fmt.Errorf("reading token: %w", err)
			}
			token = line
		}
		token = strings.TrimSpace(token)
		if token == "" {
			return fmt.Errorf("token is empty; use 'spark credential clear' to remove it")
		}
		return storeCredential(cmd, token)
	},
}

var credentialClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored GitHub token",
	RunE: func(cmd *cobra.Command, args []string) error {
		return storeCredential(cmd, "")
	},
}

func storeCredential(cmd *cobra.Command, token string) error {
	var res map[string]string
	if err := call(cmd, "PUT", "/credential", api.CredentialRequest{Token: token}, &res); err != nil {
		return err
	}
	printSuccess("Credential %s", res["status"])
	return nil
}

var credentialVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the stored token against GitHub and the site repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		var check publish.CredentialCheck
		if err := call(cmd, "POST", "/credential/verify", nil, &check); err != nil {
			return err
		}
		printStatus("Login", "%s", check.Login)
		printStatus("Repository", "%s", check.Repo)
		switch {
		case !check.RepoFound:
			printWarning("Repository %s not found; create it before publishing", check.Repo)
		case !check.CanPush:
			printWarning("Token cannot push to %s", check.Repo)
		default:
			printSuccess("Token can publish to %s", check.Repo)
		}
		return nil
	},
}

func init() {
	credentialCmd.AddCommand(credentialSetCmd)
	credentialCmd.AddCommand(credentialClearCmd)
	credentialCmd.AddCommand(credentialVerifyCmd)
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
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: "Set a configuration value. Valid keys:\n  " + strings.Join(config.ValidKeys(), "\n  ") +
		"\n\nSecrets (openai.api_key, github.token, redis.password) are read from SPARK_* env vars or the platform secret store.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
