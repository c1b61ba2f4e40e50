package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/MosinFAM/forum-moderation/internal/board"
	"github.com/MosinFAM/forum-moderation/internal/client"
	"github.com/MosinFAM/forum-moderation/internal/models"
	"github.com/MosinFAM/forum-moderation/internal/render"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

type options struct {
	server string
	token  string
	depth  int
}

func (o *options) client() *client.Client {
	return client.New(client.Session{BaseURL: o.server, Token: o.token}, nil)
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "modctl",
		Short:         "Console for the forum moderation queue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	server := os.Getenv("MODCTL_SERVER")
	if server == "" {
		server = defaultServer
	}
	root.PersistentFlags().StringVar(&opts.server, "server", server, "moderation API base URL (MODCTL_SERVER)")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("MODCTL_TOKEN"), "admin bearer token (MODCTL_TOKEN)")
	root.PersistentFlags().IntVar(&opts.depth, "depth", 6, "maximum indentation depth when printing trees")

	root.AddCommand(
		newListCmd(opts),
		newStatsCmd(opts),
		newStatusCmd(opts, "approve", models.StatusApproved),
		newStatusCmd(opts, "reject", models.StatusRejected),
		newDeleteCmd(opts),
		newWatchCmd(opts),
	)
	return root
}

func newListCmd(opts *options) *cobra.Command {
	var (
		search string
		all    bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show posts awaiting moderation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := opts.client().FetchModeration(cmd.Context(), search, !all)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := render.Tree(out, list.Posts, opts.depth); err != nil {
				return err
			}
			return render.Summary(out, list.Summary)
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "match author, title or content (case-insensitive)")
	cmd.Flags().BoolVar(&all, "all", false, "show every post, not only those with pending nodes")
	return cmd
}

func newStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show node counts by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.client().Summary(cmd.Context())
			if err != nil {
				return err
			}
			return render.Summary(cmd.OutOrStdout(), s)
		},
	}
}

func newStatusCmd(opts *options, name string, status models.Status) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <postId> [replyId]",
		Short: fmt.Sprintf("Mark a post or reply as %s", status),
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := loadBoard(cmd, opts)
			if err != nil {
				return err
			}
			postID, replyID := target(args)
			node, err := b.SetStatus(cmd.Context(), postID, replyID, status)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s is now %s\n", kind(replyID), node.ID, node.Status)
			return render.Summary(cmd.OutOrStdout(), b.Summary())
		},
	}
}

func newDeleteCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <postId> [replyId]",
		Short: "Delete a post or a reply with its subtree",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := loadBoard(cmd, opts)
			if err != nil {
				return err
			}
			postID, replyID := target(args)
			if err := b.Delete(cmd.Context(), postID, replyID); err != nil {
				return err
			}
			id := postID
			if replyID != nil {
				id = *replyID
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s deleted\n", kind(replyID), id)
			return render.Summary(cmd.OutOrStdout(), b.Summary())
		},
	}
}

func newWatchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the queue and follow moderation events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c := opts.client()
			b := board.New(c)

			events, err := c.Events(ctx)
			if err != nil {
				return err
			}
			if err := b.Refresh(ctx); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := render.Tree(out, b.Pending(""), opts.depth); err != nil {
				return err
			}
			render.Summary(out, b.Summary())

			for ev := range events {
				if err := b.ApplyEvent(ctx, ev); err != nil {
					return err
				}
				id := ev.PostID
				if ev.ReplyID != nil {
					id = *ev.ReplyID
				}
				line := fmt.Sprintf("%s %s %s", ev.Type, kind(ev.ReplyID), id)
				if ev.Status != "" {
					line += " -> " + string(ev.Status)
				}
				fmt.Fprintln(out, line)
				render.Summary(out, b.Summary())
			}
			if ctx.Err() != nil {
				return nil
			}
			return errors.New("event stream closed by server")
		},
	}
}

func loadBoard(cmd *cobra.Command, opts *options) (*board.Board, error) {
	b := board.New(opts.client())
	if err := b.Refresh(cmd.Context()); err != nil {
		return nil, err
	}
	return b, nil
}

func target(args []string) (string, *string) {
	if len(args) == 2 {
		return args[0], &args[1]
	}
	return args[0], nil
}

func kind(replyID *string) string {
	if replyID == nil {
		return "post"
	}
	return "reply"
}
