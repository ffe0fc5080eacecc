// template-security-audit runs one audit of template-derived repositories
// from cron or CI and writes the findings document as JSON.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/locktivity/epack-collector-template-security/internal/config"
)

// Version is set at build time via -ldflags
var Version = "dev"

const configFlag = "config"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template-security-audit",
		Short: "Audit repositories created from a template against a security baseline",
		Long: `Discovers repositories created from a template repository across one or more
organizations or users, checks CODEOWNERS, dependabot, security policy, platform
security settings, branch protection and workflow hardening, and optionally opens
pull requests adding missing baseline files.

Settings come from flags, environment variables (GH_TOKEN, ORGS,
TEMPLATE_FULL_NAME, BRANCHES, REPORT_MODE, AUTO_FIX, MAX_AUTOFIX_PRS, ...)
and an optional YAML config file, in that order of precedence.`,
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configFile, err := cmd.Flags().GetString(configFlag)
			if err != nil {
				return err
			}
			settings, err := config.NewLoader(cmd.Flags()).Load(configFile)
			if err != nil {
				return err
			}
			container, err := buildContainer(settings, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return container.Invoke(func(a *app) error {
				return a.run(cmd.Context())
			})
		},
	}

	cmd.Flags().StringP(configFlag, "c", "", "path to a YAML config file")
	config.AddFlags(cmd.Flags())
	return cmd
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
