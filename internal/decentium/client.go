// Package decentium reads blogs, posts, profiles and feeds of the Decentium
// contract.
package decentium

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/decentium/decentium-go/internal/client"
	"github.com/decentium/decentium-go/internal/models"
	"github.com/decentium/decentium-go/internal/query"
)

const (
	// DefaultContract is the account the Decentium contract is deployed to.
	DefaultContract = "decentiumorg"
	// DefaultLimit is the page size used when none is given.
	DefaultLimit = 20
	// DefaultConcurrency bounds ResolvePosts when no limit is given.
	DefaultConcurrency = 10
)

// ErrInvalidRef is returned when a referenced transaction does not carry the
// expected contract action.
var ErrInvalidRef = stderrors.New("ref points to invalid transaction")

// DataProvider is the data access layer the client reads through.
type DataProvider interface {
	GetTableRows(ctx context.Context, q query.TableQuery) (*client.TableRows, error)
	GetTransaction(ctx context.Context, txID string, approxBlock uint32) (*models.Transaction, error)
}

// APIClient reads the Decentium contract.
type APIClient struct {
	provider DataProvider
	contract string
}

// New creates a client for contract. An empty contract means DefaultContract.
func New(provider DataProvider, contract string) *APIClient {
	if contract == "" {
		contract = DefaultContract
	}
	return &APIClient{provider: provider, contract: contract}
}

// Contract returns the contract account the client reads.
func (c *APIClient) Contract() string {
	return c.contract
}

func rows[T any](ctx context.Context, p DataProvider, q query.TableQuery) ([]T, error) {
	resp, err := p.GetTableRows(ctx, q)
	if err != nil {
		return nil, err
	}
	return client.DecodeRows[T](resp.Rows)
}

// GetBlog returns author's blog, or nil if there is none.
func (c *APIClient) GetBlog(ctx context.Context, author string) (*BlogRow, error) {
	q, err := query.BlogByAuthor(c.contract, author)
	if err != nil {
		return nil, err
	}
	blogs, err := rows[BlogRow](ctx, c.provider, q)
	if err != nil {
		return nil, errors.WithMessagef(err, "get blog %s", author)
	}
	if len(blogs) == 0 || blogs[0].Author != author {
		return nil, nil
	}
	return &blogs[0], nil
}

// GetProfile returns the profile of author's blog, or nil if the author has no
// blog or the blog has no profile.
func (c *APIClient) GetProfile(ctx context.Context, author string) (*ActionProfile, error) {
	blog, err := c.GetBlog(ctx, author)
	if err != nil {
		return nil, err
	}
	if blog == nil || blog.Profile == nil {
		return nil, nil
	}
	return c.ResolveProfile(ctx, *blog.Profile)
}

// GetProfileByRef returns the profile set by the referenced transaction.
func (c *APIClient) GetProfileByRef(ctx context.Context, ref TxRef) (*ActionProfile, error) {
	return c.ResolveProfile(ctx, ref)
}

// ResolveProfile loads the profile action of ref.
func (c *APIClient) ResolveProfile(ctx context.Context, ref TxRef) (*ActionProfile, error) {
	var profile ActionProfile
	if err := c.resolveAction(ctx, ref, "profile", &profile); err != nil {
		return nil, errors.WithMessage(err, "resolve profile")
	}
	return &profile, nil
}

// GetPosts returns a page of author's posts, newest first. from is the cursor
// returned as Next by the previous page, in unix seconds; empty starts at the
// newest post.
func (c *APIClient) GetPosts(ctx context.Context, author, from string, limit int) (*PostsPage, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	var cursor *uint64
	if from != "" {
		v, err := strconv.ParseUint(from, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor %q: %w", from, err)
		}
		cursor = &v
	}
	q, err := query.PostsByTime(c.contract, author, cursor, limit)
	if err != nil {
		return nil, err
	}
	posts, err := rows[PostRow](ctx, c.provider, q)
	if err != nil {
		return nil, errors.WithMessagef(err, "get posts of %s", author)
	}

	page, boundary := query.Page(posts, limit)
	out := &PostsPage{Posts: make([]PostRef, 0, len(page))}
	for _, row := range page {
		out.Posts = append(out.Posts, row.Ref)
	}
	if boundary != nil {
		t, err := boundary.Ref.Time()
		if err != nil {
			return nil, fmt.Errorf("invalid post timestamp %q: %w", boundary.Ref.Timestamp, err)
		}
		out.Next = strconv.FormatInt(t.Unix(), 10)
	}
	return out, nil
}

// GetTrending returns a page of the trending feed, highest score first,
// optionally restricted to a category.
func (c *APIClient) GetTrending(ctx context.Context, opts TrendingOptions) (*TrendingPage, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	q, err := query.Trending(c.contract, opts.From, opts.Category, limit)
	if err != nil {
		return nil, err
	}
	trending, err := rows[TrendingRow](ctx, c.provider, q)
	if err != nil {
		return nil, errors.WithMessage(err, "get trending")
	}

	page, boundary := query.Page(trending, limit)
	out := &TrendingPage{Posts: make([]PostRef, 0, len(page))}
	for _, row := range page {
		out.Posts = append(out.Posts, row.Ref)
	}
	// A zero score cannot be passed back as From, which would restart the feed.
	if boundary != nil && boundary.Score > 0 {
		next := uint64(boundary.Score)
		out.Next = &next
	}
	return out, nil
}

// GetPostRef looks up a post by permlink, or nil if there is none.
func (c *APIClient) GetPostRef(ctx context.Context, permlink Permlink) (*PostRef, error) {
	q, err := query.PostBySlug(c.contract, permlink.Author, permlink.Slug)
	if err != nil {
		return nil, err
	}
	posts, err := rows[PostRow](ctx, c.provider, q)
	if err != nil {
		return nil, errors.WithMessagef(err, "get post %s", permlink)
	}
	if len(posts) == 0 || posts[0].Ref.Permlink != permlink {
		return nil, nil
	}
	return &posts[0].Ref, nil
}

// GetPost looks up and resolves a post by permlink, or nil if there is none.
func (c *APIClient) GetPost(ctx context.Context, permlink Permlink) (*ActionPost, error) {
	ref, err := c.GetPostRef(ctx, permlink)
	if err != nil || ref == nil {
		return nil, err
	}
	return c.ResolvePost(ctx, *ref)
}

// ResolvePost loads the post action of ref, preferring the latest edit.
func (c *APIClient) ResolvePost(ctx context.Context, ref PostRef) (*ActionPost, error) {
	tx := ref.Tx
	if ref.EditTx != nil {
		tx = *ref.EditTx
	}
	var post ActionPost
	if err := c.resolveAction(ctx, tx, "post", &post); err != nil {
		return nil, errors.WithMessagef(err, "resolve post %s", ref.Permlink)
	}
	return &post, nil
}

// ResolvePosts resolves refs concurrently, at most concurrency at a time.
// Results keep the order of refs.
func (c *APIClient) ResolvePosts(ctx context.Context, refs []PostRef, concurrency int) ([]*ActionPost, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	out := make([]*ActionPost, len(refs))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)
	for i := range refs {
		i := i
		eg.Go(func() error {
			post, err := c.ResolvePost(ctx, refs[i])
			if err != nil {
				return err
			}
			out[i] = post
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *APIClient) resolveAction(ctx context.Context, ref TxRef, name string, v any) error {
	tx, err := c.provider.GetTransaction(ctx, ref.TransactionID, ref.BlockNum)
	if err != nil {
		return err
	}
	for i := range tx.Actions {
		a := &tx.Actions[i]
		if a.Account == c.contract && a.Name == name {
			return a.Decode(v)
		}
	}
	return fmt.Errorf("%w: %s has no %s::%s action", ErrInvalidRef, ref.TransactionID, c.contract, name)
}
