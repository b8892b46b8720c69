package decentium

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	api "github.com/decentium/decentium-go/internal/decentium"
)

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the node's chain head",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info, err := a.node.GetInfo(cmd.Context())
			if err != nil {
				return err
			}
			return a.print(info)
		},
	}
}

func parseBlockNum(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid block number %q", s)
	}
	return uint32(n), nil
}

func newBlockCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "block <num>",
		Short: "Fetch a block with decoded actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			num, err := parseBlockNum(args[0])
			if err != nil {
				return err
			}
			block, err := a.provider.GetBlock(cmd.Context(), num)
			if err != nil {
				return err
			}
			return a.print(block)
		},
	}
}

func newTxCmd(a *app) *cobra.Command {
	var near uint32
	cmd := &cobra.Command{
		Use:   "tx <id>",
		Short: "Find a transaction at or near a block",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tx, err := a.provider.GetTransaction(cmd.Context(), args[0], near)
			if err != nil {
				return err
			}
			return a.print(tx)
		},
	}
	cmd.Flags().Uint32Var(&near, "block", 0, "Approximate block number of the transaction")
	_ = cmd.MarkFlagRequired("block")
	return cmd
}

func newBlogCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "blog <author>",
		Short: "Show an author's blog row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blog, err := a.api.GetBlog(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(blog)
		},
	}
}

func newProfileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "profile <author>",
		Short: "Show an author's profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, err := a.api.GetProfile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.print(profile)
		},
	}
}

func newPostsCmd(a *app) *cobra.Command {
	var (
		from    string
		limit   int
		resolve bool
	)
	cmd := &cobra.Command{
		Use:   "posts <author>",
		Short: "List an author's posts, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := a.api.GetPosts(cmd.Context(), args[0], from, limit)
			if err != nil {
				return err
			}
			if !resolve {
				return a.print(page)
			}
			posts, err := a.api.ResolvePosts(cmd.Context(), page.Posts, int(a.cfg.MaxConcurrency))
			if err != nil {
				return err
			}
			return a.print(struct {
				Posts []*api.ActionPost `json:"posts"`
				Next  string            `json:"next,omitempty"`
			}{posts, page.Next})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Cursor returned as next by the previous page")
	cmd.Flags().IntVar(&limit, "limit", api.DefaultLimit, "Page size")
	cmd.Flags().BoolVar(&resolve, "resolve", false, "Load the post actions instead of the refs")
	return cmd
}

func newPostCmd(a *app) *cobra.Command {
	var refOnly bool
	cmd := &cobra.Command{
		Use:   "post <author/slug>",
		Short: "Show a post by permlink",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			permlink, err := api.ParsePermlink(args[0])
			if err != nil {
				return err
			}
			if refOnly {
				ref, err := a.api.GetPostRef(cmd.Context(), permlink)
				if err != nil {
					return err
				}
				return a.print(ref)
			}
			post, err := a.api.GetPost(cmd.Context(), permlink)
			if err != nil {
				return err
			}
			return a.print(post)
		},
	}
	cmd.Flags().BoolVar(&refOnly, "ref", false, "Only show the post's table row")
	return cmd
}

func newTrendingCmd(a *app) *cobra.Command {
	var (
		from     uint64
		category string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "trending",
		Short: "List the trending feed, highest score first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := api.TrendingOptions{Category: category, Limit: limit}
			if cmd.Flags().Changed("from") {
				opts.From = &from
			}
			page, err := a.api.GetTrending(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return a.print(page)
		},
	}
	cmd.Flags().Uint64Var(&from, "from", 0, "Score returned as next by the previous page")
	cmd.Flags().StringVar(&category, "category", "", "Restrict the feed to a category")
	cmd.Flags().IntVar(&limit, "limit", api.DefaultLimit, "Page size")
	return cmd
}
