package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"minerva/internal/config"
	"minerva/internal/wildcard"
)

func newExpandCmd(opts *rootOptions) *cobra.Command {
	var (
		count int
		seed  int64
	)
	cmd := &cobra.Command{
		Use:   "expand [template]",
		Short: "Preview expansions of a template",
		Long:  "expand prints sample expansions of the given template, or of the next template in the config, using the configured wildcard directory.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewManager(opts.configPath).Load()
			if err != nil {
				return err
			}
			s := cfg.Settings

			template := ""
			if len(args) == 1 {
				template = args[0]
			} else if len(s.Templates) > 0 {
				template = s.Templates[s.NextTemplate%len(s.Templates)]
			}
			if template == "" {
				return fmt.Errorf("no template given and none configured")
			}

			table, err := wildcard.Load(s.WildcardDir)
			if err != nil {
				return err
			}
			if seed == 0 {
				seed = time.Now().UnixNano()
			}
			rng := rand.New(rand.NewSource(seed))

			out := cmd.OutOrStdout()
			for i := 0; i < count; i++ {
				if _, err := fmt.Fprintln(out, wildcard.Expand(template, table, s.RecursionDepth, rng)); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 5, "number of expansions to print")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed (0 picks one)")
	return cmd
}
