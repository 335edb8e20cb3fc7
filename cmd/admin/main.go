// Command admin provides operator utilities for a running PetPals deployment.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"petpals/internal/bootstrap"
	"petpals/internal/config"
	"petpals/internal/models"
	"petpals/internal/service"
	"petpals/internal/viewmodel"

	"github.com/spf13/cobra"
)

var rt *bootstrap.Runtime

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "PetPals operator utilities",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			rt, err = bootstrap.InitRuntime(cmd.Context(), cfg, bootstrap.Options{})
			if err != nil {
				return fmt.Errorf("init runtime: %w", err)
			}
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if rt == nil {
				return nil
			}
			return rt.Close()
		},
	}
	root.AddCommand(newDeletePostCmd(), newStatsCmd(), newNearbyCmd(), newFlagsCmd(),
		newFeedCmd(), newLikeCmd())
	return root
}

func newDeletePostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-post <post_id>",
		Short: "Delete a post with its image and comments, regardless of owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			post, err := rt.Services.Posts.GetByID(ctx, args[0])
			if err != nil {
				return fmt.Errorf("load post %s: %w", args[0], err)
			}
			report, err := rt.Services.Deletion.Delete(ctx, post)
			if err != nil {
				return fmt.Errorf("delete post %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted post %s (image removed: %t, comments removed: %d in %d pages)\n",
				report.PostID, report.ImageDeleted, report.CommentsDeleted, report.CommentPages)
			for _, r := range report.Residual {
				fmt.Fprintf(cmd.OutOrStdout(), "  residual %s\n", r)
			}
			return nil
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <user_id>",
		Short: "Print a user's post statistics as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := rt.Services.Stats.UserStats(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
}

func newNearbyCmd() *cobra.Command {
	var lat, lng, radius float64
	var users bool
	cmd := &cobra.Command{
		Use:   "nearby",
		Short: "List geotagged posts (or users) around a point",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := service.NearbyInput{
				Center:   &models.GeoPoint{Latitude: lat, Longitude: lng},
				RadiusKm: radius,
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer w.Flush()
			if users {
				found, err := rt.Services.Map.LoadNearbyUsers(cmd.Context(), in)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "USER\tPET\tDISTANCE_M")
				for _, u := range found {
					fmt.Fprintf(w, "%s\t%s\t%s\n", u.UserID, u.PetName, formatDistance(u.DistanceM))
				}
				return nil
			}
			posts, err := rt.Services.Map.LoadNearby(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "POST\tAUTHOR\tDISTANCE_M\tTEXT")
			for _, p := range posts {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.PostID, p.AuthorName, formatDistance(p.DistanceM), p.Text)
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "Center latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "Center longitude")
	cmd.Flags().Float64Var(&radius, "radius-km", 5, "Radius in kilometres")
	cmd.Flags().BoolVar(&users, "users", false, "List users instead of posts")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lng")
	return cmd
}

func newFlagsCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "flags",
		Short: "Show configured feature flags and how they evaluate for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := map[string]any{"raw": rt.Flags.Raw()}
			if userID != "" {
				out["evaluated"] = rt.Flags.Snapshot(userID)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "Evaluate percentage rollouts for this user id")
	return cmd
}

// loadFeed builds a feed view for userID from the current store contents.
func loadFeed(ctx context.Context, userID string) (*viewmodel.Feed, error) {
	entries, err := rt.Services.Feed.LoadFeed(ctx)
	if err != nil {
		return nil, err
	}
	feed := viewmodel.NewFeed(userID, rt.Services.Post, rt.Services.Post)
	feed.Replace(entries)
	return feed, nil
}

func newFeedCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Print the newest feed entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			feed, err := loadFeed(cmd.Context(), "")
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "POST\tAUTHOR\tLIKES\tTEXT")
			for i, e := range feed.Entries() {
				if limit > 0 && i >= limit {
					break
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", e.Post.ID, e.AuthorName, e.Post.Likes, e.Post.Text)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Entries to print (0 for all)")
	return cmd
}

func newLikeCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "like <post_id>",
		Short: "Toggle a like on a post on behalf of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			feed, err := loadFeed(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if err := feed.ToggleLike(cmd.Context(), args[0]); err != nil {
				return err
			}
			for _, e := range feed.Entries() {
				if e.Post.ID == args[0] {
					fmt.Fprintf(cmd.OutOrStdout(), "post %s now has %d likes (liked by %s: %t)\n",
						e.Post.ID, e.Post.Likes, userID, e.Post.IsLikedBy(userID))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "as", "", "User id to like as")
	_ = cmd.MarkFlagRequired("as")
	return cmd
}

func formatDistance(d *float64) string {
	if d == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f", *d)
}
