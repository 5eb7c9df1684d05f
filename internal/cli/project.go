package cli

import (
	"github.com/spf13/cobra"

	"github.com/p-blackswan/taskqueue/internal/models"
	"github.com/p-blackswan/taskqueue/internal/project"
)

func (a *app) projectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE:  a.runProjectList,
	}
	listCmd.Flags().String("state", "all", "Filter: all, open, completed, pending_approval")

	showCmd := &cobra.Command{
		Use:   "show [project-id]",
		Short: "Show a project with all of its tasks",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runProjectShow,
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		Args:  cobra.NoArgs,
		RunE:  a.runProjectCreate,
	}
	createCmd.Flags().String("prompt", "", "Initial prompt")
	createCmd.Flags().String("plan", "", "Project plan (defaults to the prompt)")
	createCmd.Flags().Bool("auto-approve", false, "Approve tasks as soon as they are done")
	createCmd.Flags().String("tasks-file", "", "YAML or JSON file with task definitions")
	_ = createCmd.MarkFlagRequired("prompt")

	addCmd := &cobra.Command{
		Use:   "add-tasks [project-id]",
		Short: "Append tasks to an open project",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runProjectAddTasks,
	}
	addCmd.Flags().String("tasks-file", "", "YAML or JSON file with task definitions")
	_ = addCmd.MarkFlagRequired("tasks-file")

	updateCmd := &cobra.Command{
		Use:   "update [project-id]",
		Short: "Edit a project's prompt or plan",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runProjectUpdate,
	}
	updateCmd.Flags().String("prompt", "", "New initial prompt")
	updateCmd.Flags().String("plan", "", "New project plan")

	approveCmd := &cobra.Command{
		Use:   "approve [project-id]",
		Short: "Mark a project completed once every task is done and approved",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runProjectApprove,
	}

	deleteCmd := &cobra.Command{
		Use:   "delete [project-id]",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runProjectDelete,
	}

	nextCmd := &cobra.Command{
		Use:   "next [project-id]",
		Short: "Show the next task to work on",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runProjectNext,
	}

	historyCmd := &cobra.Command{
		Use:   "history [project-id]",
		Short: "Show recorded lifecycle events",
		Args:  cobra.ExactArgs(1),
		RunE:  a.runProjectHistory,
	}
	historyCmd.Flags().Int("limit", 20, "Number of events to show (0 for all)")

	cmd.AddCommand(listCmd, showCmd, createCmd, addCmd, updateCmd, approveCmd, deleteCmd, nextCmd, historyCmd)
	return cmd
}

func (a *app) runProjectList(cmd *cobra.Command, _ []string) error {
	raw, _ := cmd.Flags().GetString("state")
	filter, err := project.ParseStateFilter(raw)
	if err != nil {
		return err
	}
	return a.withDeps(func(d *deps) error {
		out, err := d.registry.ListProjects(filter)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), a.output, out)
	})
}

func (a *app) runProjectShow(cmd *cobra.Command, args []string) error {
	return a.withDeps(func(d *deps) error {
		p, err := d.registry.ReadProject(args[0])
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), a.output, p)
	})
}

func (a *app) runProjectCreate(cmd *cobra.Command, _ []string) error {
	prompt, _ := cmd.Flags().GetString("prompt")
	plan, _ := cmd.Flags().GetString("plan")
	autoApprove, _ := cmd.Flags().GetBool("auto-approve")
	tasksFile, _ := cmd.Flags().GetString("tasks-file")

	var defs []models.TaskDef
	if tasksFile != "" {
		var err error
		if defs, err = readTaskDefs(tasksFile); err != nil {
			return err
		}
	}

	return a.withDeps(func(d *deps) error {
		res, err := d.registry.CreateProject(project.CreateProjectInput{
			InitialPrompt: prompt,
			ProjectPlan:   plan,
			Tasks:         defs,
			AutoApprove:   autoApprove,
		})
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), a.output, res)
	})
}

func (a *app) runProjectAddTasks(cmd *cobra.Command, args []string) error {
	tasksFile, _ := cmd.Flags().GetString("tasks-file")
	defs, err := readTaskDefs(tasksFile)
	if err != nil {
		return err
	}
	return a.withDeps(func(d *deps) error {
		res, err := d.registry.AddTasksToProject(args[0], defs)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), a.output, res)
	})
}

func (a *app) runProjectUpdate(cmd *cobra.Command, args []string) error {
	var in project.UpdateProjectInput
	if cmd.Flags().Changed("prompt") {
		v, _ := cmd.Flags().GetString("prompt")
		in.InitialPrompt = &v
	}
	if cmd.Flags().Changed("plan") {
		v, _ := cmd.Flags().GetString("plan")
		in.ProjectPlan = &v
	}
	return a.withDeps(func(d *deps) error {
		p, err := d.registry.UpdateProject(args[0], in)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), a.output, p)
	})
}

func (a *app) runProjectApprove(cmd *cobra.Command, args []string) error {
	return a.withDeps(func(d *deps) error {
		res, err := d.registry.ApproveProjectCompletion(args[0])
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), a.output, res)
	})
}

func (a *app) runProjectDelete(cmd *cobra.Command, args []string) error {
	return a.withDeps(func(d *deps) error {
		if err := d.registry.DeleteProject(args[0]); err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), a.output, map[string]string{
			"projectId": args[0],
			"message":   "Project " + args[0] + " has been deleted.",
		})
	})
}

func (a *app) runProjectNext(cmd *cobra.Command, args []string) error {
	return a.withDeps(func(d *deps) error {
		res, err := d.registry.GetNextTask(args[0])
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), a.output, res)
	})
}

func (a *app) runProjectHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	return a.withDeps(func(d *deps) error {
		j, err := d.requireJournal()
		if err != nil {
			return err
		}
		events, err := j.ListEvents(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), a.output, events)
	})
}
