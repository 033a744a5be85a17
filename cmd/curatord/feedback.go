package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/curator/internal/feed"
	"github.com/fyrsmithlabs/curator/internal/feedback"
)

var voteReason string

var voteCmd = &cobra.Command{
	Use:   "vote <item-id> <up|down>",
	Short: "Record a vote on a delivered item",
	Long: `Record an up or down vote on an item. The voted text is embedded
into the retrieval index so future scoring can learn from it.

Examples:
  curatord vote 1930000000000000000 up
  curatord vote 1930000000000000000 down --reason "engagement bait"`,
	Args: cobra.ExactArgs(2),
	RunE: runVote,
}

var undoCmd = &cobra.Command{
	Use:   "undo <item-id>",
	Short: "Undo the item's most recent vote",
	Long: `Retract the active vote on an item. Only accepted within the
configured grace window after the vote was cast.

Examples:
  curatord undo 1930000000000000000`,
	Args: cobra.ExactArgs(1),
	RunE: runUndo,
}

var authorCmd = &cobra.Command{
	Use:   "author",
	Short: "Manage author delivery tiers",
}

var authorFavoriteCmd = &cobra.Command{
	Use:   "favorite <handle>",
	Short: "Toggle an author toward the favorite tier",
	Long: `Favorite authors get a lower delivery threshold. Toggling a muted
author resets them to normal instead.

Examples:
  curatord author favorite vitalik`,
	Args: cobra.ExactArgs(1),
	RunE: runAuthorFavorite,
}

var authorMuteCmd = &cobra.Command{
	Use:   "mute <handle>",
	Short: "Toggle an author toward the muted tier",
	Long: `Muted authors need a higher score to be delivered. Toggling a
favorite author resets them to normal instead.

Examples:
  curatord author mute shillbot9000`,
	Args: cobra.ExactArgs(1),
	RunE: runAuthorMute,
}

func init() {
	voteCmd.Flags().StringVar(&voteReason, "reason", "", "optional note stored with the vote")
	authorCmd.AddCommand(authorFavoriteCmd)
	authorCmd.AddCommand(authorMuteCmd)
}

func feedbackService(a *app) *feedback.Service {
	return feedback.NewService(a.store, a.retrieval, a.config.Feedback, a.logger)
}

func runVote(cmd *cobra.Command, args []string) error {
	vote := feed.Vote(args[1])
	if !vote.Valid() {
		return fmt.Errorf("vote must be 'up' or 'down', got %q", args[1])
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := feedbackService(a).Vote(cmd.Context(), args[0], vote, voteReason); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "voted %s on %s\n", vote, args[0])
	return nil
}

func runUndo(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := feedbackService(a).Undo(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "vote on %s undone\n", args[0])
	return nil
}

func runAuthorFavorite(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	tier, err := feedbackService(a).ToggleFavorite(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", args[0], tier)
	return nil
}

func runAuthorMute(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	tier, err := feedbackService(a).ToggleMute(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", args[0], tier)
	return nil
}
