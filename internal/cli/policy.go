package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pratik-mahalle/tagaudit/internal/domain/policy"
)

func newPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect tagging policies",
	}
	cmd.AddCommand(newPolicyValidateCmd())
	cmd.AddCommand(newPolicyShowCmd())
	return cmd
}

func newPolicyValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <policy.yaml>",
		Short: "Validate a tagging policy file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := policy.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Policy is valid: %d required tag(s), %d default(s).\n",
				len(spec.RequiredTags), len(spec.Defaults))
			return nil
		},
	}
}

func newPolicyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <policy.yaml>",
		Short: "Show a tagging policy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := policy.Load(args[0])
			if err != nil {
				return err
			}
			return printOutput(spec, func() {
				t := NewTable("REQUIRED TAG", "DEFAULT")
				for _, tag := range spec.RequiredTags {
					def, ok := spec.DefaultFor(tag)
					if !ok {
						def = "-"
					}
					t.AddRow(tag, def)
				}
				t.Print()
			})
		},
	}
}
