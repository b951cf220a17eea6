package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/polisai/cx-policy-validator/pkg/domain"
	"github.com/polisai/cx-policy-validator/pkg/policy"
)

func newVocabularyCmd(root *rootOptions) *cobra.Command {
	var (
		action string
		kind   string
	)

	cmd := &cobra.Command{
		Use:   "vocabulary",
		Short: "Print the effective vocabulary, or the left operands of one action",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}

			vocab, err := policy.DefaultVocabulary()
			if cfg.Validation.VocabularyFile != "" {
				vocab, err = policy.LoadVocabulary(cfg.Validation.VocabularyFile)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if action == "" {
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(vocab); err != nil {
					return err
				}
				return enc.Close()
			}

			if _, ok := vocab.Actions[action]; !ok {
				return fmt.Errorf("unknown action %q", action)
			}
			for _, name := range vocab.LeftOperandsFor(action, domain.RuleKind(kind)) {
				if _, err := fmt.Fprintln(out, name); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&action, "action", "", "List the left operands usable with this action")
	cmd.Flags().StringVar(&kind, "kind", string(domain.RuleKindPermission), "Rule kind used with --action (permission, prohibition, obligation)")
	return cmd
}
