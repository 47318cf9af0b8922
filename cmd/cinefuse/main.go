// Command cinefuse serves and queries the hybrid movie search engine.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/cinefuse/internal/config"
	"github.com/kailas-cloud/cinefuse/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var env string

	root := &cobra.Command{
		Use:           "cinefuse",
		Short:         "Hybrid keyword and semantic movie search",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&env, "env", "e", config.GetEnv(),
		"config environment (local, dev, docker, prod); reads config/<env>.yaml")

	root.AddCommand(
		newServeCmd(&env),
		newSearchCmd(&env),
		newImportCmd(&env),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cinefuse %s (commit %s, built %s)\n",
				version.Version, version.Commit, version.Date)
		},
	}
}
