package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/cuongbtq/jobflow/internal/api/service"
	"github.com/cuongbtq/jobflow/internal/report"
	"github.com/cuongbtq/jobflow/internal/workflow"
	"github.com/spf13/cobra"
)

func newBoardCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Print the job board or export it to Excel",
		Long: `Print jobs grouped by lane. With --out the jobs are written to an
Excel workbook instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			projectID, _ := cmd.Flags().GetString(flagProject)
			out, _ := cmd.Flags().GetString(flagOut)

			return env.withStore(func(store Store) error {
				jobs := service.NewJobService(store, store, store, nil, env.logger, service.Options{
					BoardLimit: env.cfg.Workflow.DefaultBoardPageSize,
				})
				in := service.BoardInput{ProjectID: projectID}

				if out != "" {
					list, err := jobs.Jobs(cmd.Context(), in)
					if err != nil {
						return fmt.Errorf("error loading jobs: %w", err)
					}
					return writeWorkbook(out, list)
				}

				board, err := jobs.Board(cmd.Context(), in)
				if err != nil {
					return fmt.Errorf("error loading board: %w", err)
				}
				return printBoard(env, board)
			})
		},
	}

	cmd.Flags().StringP(flagProject, "p", "", "Only jobs of this project")
	cmd.Flags().StringP(flagOut, "o", "", "Write an .xlsx export to this path")
	return cmd
}

func writeWorkbook(path string, jobs []*workflow.Job) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", path, err)
	}
	if err := report.WriteBoard(f, jobs, time.Now()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printBoard(env *Env, board *service.Board) error {
	tw := tabwriter.NewWriter(env.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LANE\tJOB\tTITLE\tCURRENT STEP\tASSIGNEE\tPROGRESS")

	for _, lane := range workflow.Lanes {
		for _, job := range board.Lanes[lane] {
			var stepName, assignee string
			if current := job.CurrentStep(); current != nil {
				stepName, assignee = current.Name, current.AssigneeID
			}
			done, total := job.Progress()
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d/%d\n",
				lane, job.ID, job.Title, stepName, assignee, done, total)
		}
	}

	if err := tw.Flush(); err != nil {
		return err
	}
	if board.Truncated {
		fmt.Fprintln(env.Out, "(board truncated)")
	}
	return nil
}
