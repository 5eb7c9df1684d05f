package cli

import (
	"github.com/spf13/cobra"

	"github.com/p-blackswan/taskqueue/internal/models"
	"github.com/p-blackswan/taskqueue/internal/project"
)

func (a *app) taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks across projects",
		Args:  cobra.NoArgs,
		RunE:  a.runTaskList,
	}
	listCmd.Flags().String("project", "", "Only list tasks of this project")
	listCmd.Flags().String("state", "all", "Filter: all, open, completed, pending_approval")

	showCmd := &cobra.Command{
		Use:   "show [task-id]",
		Short: "Show a task and its owning project",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runTaskShow,
	}

	updateCmd := &cobra.Command{
		Use:   "update [project-id] [task-id]",
		Short: "Change a task's status or fields",
		Args:  cobra.ExactArgs(2),
		RunE:  a.runTaskUpdate,
	}
	updateCmd.Flags().String("status", "", "not started, in progress or done")
	updateCmd.Flags().String("details", "", "Completed details (required when marking done)")
	updateCmd.Flags().String("title", "", "New title")
	updateCmd.Flags().String("description", "", "New description")
	updateCmd.Flags().String("tools", "", "Tool recommendations")
	updateCmd.Flags().String("rules", "", "Rule recommendations")

	approveCmd := &cobra.Command{
		Use:   "approve [project-id] [task-id]",
		Short: "Approve a done task",
		Args:  cobra.ExactArgs(2),
		RunE:  a.runTaskApprove,
	}

	deleteCmd := &cobra.Command{
		Use:   "delete [project-id] [task-id]",
		Short: "Delete a task that is not approved",
		Args:  cobra.ExactArgs(2),
		RunE:  a.runTaskDelete,
	}

	cmd.AddCommand(listCmd, showCmd, updateCmd, approveCmd, deleteCmd)
	return cmd
}

func (a *app) runTaskList(cmd *cobra.Command, _ []string) error {
	projectID, _ := cmd.Flags().GetString("project")
	raw, _ := cmd.Flags().GetString("state")
	filter, err := project.ParseStateFilter(raw)
	if err != nil {
		return err
	}
	return a.withDeps(func(d *deps) error {
		out, err := d.registry.ListTasks(projectID, filter)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), a.output, out)
	})
}

func (a *app) runTaskShow(cmd *cobra.Command, args []string) error {
	return a.withDeps(func(d *deps) error {
		out, err := d.registry.OpenTaskDetails(args[0])
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), a.output, out)
	})
}

// taskUpdateFromFlags sets only the fields whose flags were given.
func taskUpdateFromFlags(cmd *cobra.Command) models.TaskUpdate {
	var upd models.TaskUpdate
	str := func(name string) *string {
		if !cmd.Flags().Changed(name) {
			return nil
		}
		v, _ := cmd.Flags().GetString(name)
		return &v
	}
	if s := str("status"); s != nil {
		st := models.Status(*s)
		upd.Status = &st
	}
	upd.CompletedDetails = str("details")
	upd.Title = str("title")
	upd.Description = str("description")
	upd.ToolRecommendations = str("tools")
	upd.RuleRecommendations = str("rules")
	return upd
}

func (a *app) runTaskUpdate(cmd *cobra.Command, args []string) error {
	upd := taskUpdateFromFlags(cmd)
	return a.withDeps(func(d *deps) error {
		t, err := d.registry.UpdateTask(args[0], args[1], upd)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), a.output, t)
	})
}

func (a *app) runTaskApprove(cmd *cobra.Command, args []string) error {
	return a.withDeps(func(d *deps) error {
		t, err := d.registry.ApproveTaskCompletion(args[0], args[1])
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), a.output, t)
	})
}

func (a *app) runTaskDelete(cmd *cobra.Command, args []string) error {
	return a.withDeps(func(d *deps) error {
		if err := d.registry.DeleteTask(args[0], args[1]); err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), a.output, map[string]string{
			"projectId": args[0],
			"taskId":    args[1],
			"message":   "Task " + args[1] + " has been deleted.",
		})
	})
}
