package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/fiqh-assistant/internal/domain"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List or delete stored sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSessionsList,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session locally and remotely",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd, sessionsDeleteCmd)
}

func runSessionsList(cmd *cobra.Command, args []string) (err error) {
	a, err := newApp(cmd.Context(), cliLogOutput())
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.shutdown()) }()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tMESSAGES\tTITLE")
	for _, s := range a.svc.Sessions() {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.ID, s.CreatedAt.Format("2006-01-02 15:04"), len(s.Messages), s.Title)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "status: %s\n", a.svc.Status())
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	a, err := newApp(ctx, cliLogOutput())
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.shutdown()) }()

	if err := a.svc.DeleteSession(ctx, domain.SessionID(args[0])); err != nil {
		return fmt.Errorf("session %s: %w", args[0], err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
	return nil
}
