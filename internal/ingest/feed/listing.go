package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lueurxax/goal-clip-bot/internal/core/domain"
)

const (
	redditBase      = "https://www.reddit.com"
	maxReplayPages  = 10
	fallbackSuffix  = "?source=fallback"
	listingAfterKey = "after"
)

// ListingSource reads a subreddit JSON listing. Native Reddit videos carry a
// direct fallback URL, which becomes the post MediaURL.
type ListingSource struct {
	url    string
	source domain.Source
	getter *getter
}

func NewListingSource(url string, source domain.Source, opts Options) *ListingSource {
	return &ListingSource{url: url, source: source, getter: newGetter(opts)}
}

func (s *ListingSource) Name() domain.Source { return s.source }

type listing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data listingPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type listingPost struct {
	Title       string      `json:"title"`
	URL         string      `json:"url"`
	Overridden  string      `json:"url_overridden_by_dest"`
	Permalink   string      `json:"permalink"`
	CreatedUTC  float64     `json:"created_utc"`
	Media       *postMedia  `json:"media"`
	SecureMedia *postMedia  `json:"secure_media"`
	Removed     interface{} `json:"removed_by_category"`
}

type postMedia struct {
	RedditVideo *struct {
		FallbackURL string `json:"fallback_url"`
	} `json:"reddit_video"`
}

func (s *ListingSource) Fetch(ctx context.Context) ([]domain.CandidatePost, error) {
	posts, _, err := s.page(ctx, "")

	return posts, err
}

// FetchSince pages back through the listing until posts older than since
// appear or the page limit is hit. Used by replay runs.
func (s *ListingSource) FetchSince(ctx context.Context, since time.Time) ([]domain.CandidatePost, error) {
	var (
		all   []domain.CandidatePost
		after string
	)

	for i := 0; i < maxReplayPages; i++ {
		posts, next, err := s.page(ctx, after)
		if err != nil {
			return all, err
		}

		reachedEnd := false

		for _, p := range posts {
			if p.CreatedAt.Before(since) {
				reachedEnd = true

				continue
			}

			all = append(all, p)
		}

		if reachedEnd || next == "" {
			break
		}

		after = next
	}

	return all, nil
}

func (s *ListingSource) page(ctx context.Context, after string) ([]domain.CandidatePost, string, error) {
	pageURL, err := withAfter(s.url, after)
	if err != nil {
		return nil, "", err
	}

	body, err := s.getter.get(ctx, pageURL, acceptJSON)
	if err != nil {
		return nil, "", err
	}

	var l listing
	if err := json.Unmarshal(body, &l); err != nil {
		return nil, "", fmt.Errorf("decode listing: %w", err)
	}

	posts := make([]domain.CandidatePost, 0, len(l.Data.Children))

	for _, child := range l.Data.Children {
		if post, ok := s.convert(child.Data); ok {
			posts = append(posts, post)
		}
	}

	return posts, l.Data.After, nil
}

func (s *ListingSource) convert(p listingPost) (domain.CandidatePost, bool) {
	if p.Removed != nil {
		return domain.CandidatePost{}, false
	}

	title := cleanTitle(p.Title)

	link := p.Overridden
	if link == "" {
		link = p.URL
	}

	if title == "" || link == "" {
		return domain.CandidatePost{}, false
	}

	post := domain.CandidatePost{
		Title:     title,
		URL:       link,
		CreatedAt: time.Unix(int64(p.CreatedUTC), 0).UTC(),
		Source:    s.source,
		MediaURL:  mediaURL(p),
	}

	if p.Permalink != "" {
		post.Permalink = redditBase + p.Permalink
	}

	return post, true
}

func mediaURL(p listingPost) string {
	for _, m := range []*postMedia{p.SecureMedia, p.Media} {
		if m != nil && m.RedditVideo != nil && m.RedditVideo.FallbackURL != "" {
			return strings.TrimSuffix(m.RedditVideo.FallbackURL, fallbackSuffix)
		}
	}

	return ""
}

func withAfter(raw, after string) (string, error) {
	if after == "" {
		return raw, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse listing url: %w", err)
	}

	q := u.Query()
	q.Set(listingAfterKey, after)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
