package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/polisai/cx-policy-validator/pkg/domain"
)

// errPolicyInvalid makes the command exit non-zero once the report has been printed.
var errPolicyInvalid = errors.New("policy definition is not valid")

func newValidateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a policy definition file (or stdin when file is - or omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open policy definition: %w", err)
				}
				defer f.Close()
				in = f
			}

			var doc map[string]any
			if err := json.NewDecoder(in).Decode(&doc); err != nil {
				return fmt.Errorf("decode policy definition: %w", err)
			}

			comps, err := buildComponents(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = comps.Close() }()

			var structured domain.StructuredDocument = doc
			if comps.interceptor != nil {
				if structured, err = comps.interceptor.Process(cmd.Context(), structured); err != nil {
					return report(cmd.OutOrStdout(), err)
				}
			}

			out, err := comps.controller.Validate(cmd.Context(), structured)
			if err != nil {
				return report(cmd.OutOrStdout(), err)
			}
			if err := printJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if valid, _ := out["isValid"].(bool); !valid {
				return errPolicyInvalid
			}
			return nil
		},
	}
}

// report prints a rejected document's error category and detail.
func report(w io.Writer, err error) error {
	detail := map[string]any{
		"type":    domain.ErrorType(err),
		"message": err.Error(),
	}
	var vf *domain.ValidationFailureError
	if errors.As(err, &vf) {
		detail["violations"] = vf.Violations
	}
	var ir *domain.InvalidRequestError
	if errors.As(err, &ir) {
		detail["problems"] = ir.Problems
	}
	if perr := printJSON(w, detail); perr != nil {
		return perr
	}
	return errPolicyInvalid
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
