package cli

import (
	"github.com/spf13/cobra"

	"github.com/p-blackswan/taskqueue/internal/project"
)

func (a *app) planCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Generate projects with an LLM",
	}

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a plan and tasks from a prompt and create the project",
		Args:  cobra.NoArgs,
		RunE:  a.runPlanGenerate,
	}
	generateCmd.Flags().String("prompt", "", "What the project should achieve")
	generateCmd.Flags().StringSlice("attachment", nil, "File to include as context (repeatable)")
	generateCmd.Flags().String("provider", "", "LLM provider (defaults to TASK_MANAGER_LLM_PROVIDER)")
	generateCmd.Flags().String("model", "", "Model id (defaults to TASK_MANAGER_LLM_MODEL)")
	generateCmd.Flags().Bool("auto-approve", false, "Approve tasks as soon as they are done")

	cmd.AddCommand(generateCmd)
	return cmd
}

func (a *app) runPlanGenerate(cmd *cobra.Command, _ []string) error {
	prompt, _ := cmd.Flags().GetString("prompt")
	attachments, _ := cmd.Flags().GetStringSlice("attachment")
	provider, _ := cmd.Flags().GetString("provider")
	model, _ := cmd.Flags().GetString("model")
	autoApprove, _ := cmd.Flags().GetBool("auto-approve")

	return a.withDeps(func(d *deps) error {
		res, err := d.registry.GenerateProjectPlan(cmd.Context(), project.GeneratePlanInput{
			Prompt:      prompt,
			Provider:    provider,
			Model:       model,
			Attachments: attachments,
			AutoApprove: autoApprove,
		})
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), a.output, res)
	})
}
