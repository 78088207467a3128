package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexcodex/ceylo/trip"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "session",
		Aliases: []string{"sessions"},
		Short:   "Inspect stored conversations",
	}
	cmd.AddCommand(newSessionListCmd(), newSessionShowCmd(), newSessionDeleteCmd())
	return cmd
}

func newSessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored conversations, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			summaries, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No conversations stored.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPHASE\tDESTINATION\tTURNS\tPLAN\tUPDATED")
			for _, s := range summaries {
				dest := s.Destination
				if dest == "" {
					dest = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\t%s\n", s.ID, s.Phase, dest, s.UserTurns, s.HasPlan, s.UpdatedAt.Local().Format(time.RFC822))
			}
			return w.Flush()
		},
	}
}

func newSessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Print a conversation transcript and its plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			snap, err := store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Conversation %s (%s)\n\n", snap.ID, snap.Phase)
			for _, turn := range snap.Turns {
				label := "Ceylo"
				if turn.Speaker == trip.SpeakerUser {
					label = "You"
				}
				fmt.Fprintf(out, "%s: %s\n", label, turn.Text)
			}
			if snap.Plan != nil {
				fmt.Fprintln(out)
				fmt.Fprint(out, trip.RenderPlan(snap.Plan))
			}
			return nil
		},
	}
}

func newSessionDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a stored conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}
