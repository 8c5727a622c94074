package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/goal-clip-bot/internal/core/domain"
	coreerrors "github.com/lueurxax/goal-clip-bot/internal/core/errors"
)

const atomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>newest submissions : soccer</title>
  <entry>
    <title>Arsenal [1] - 0 Chelsea - Saka 12&#39;</title>
    <link href="https://www.reddit.com/r/soccer/comments/abc/arsenal_1_0_chelsea/" />
    <published>2026-03-01T15:00:05+00:00</published>
    <content type="html">&lt;table&gt;&lt;tr&gt;&lt;td&gt;submitted by u/bot &lt;br/&gt;
      &lt;span&gt;&lt;a href=&quot;https://streamff.co/v/abc123&quot;&gt;[link]&lt;/a&gt;&lt;/span&gt;
      &lt;span&gt;&lt;a href=&quot;https://www.reddit.com/r/soccer/comments/abc/&quot;&gt;[comments]&lt;/a&gt;&lt;/span&gt;
      &lt;/td&gt;&lt;/tr&gt;&lt;/table&gt;</content>
  </entry>
  <entry>
    <title>Daily   Discussion Free Talk</title>
    <link href="https://www.reddit.com/r/soccer/comments/def/daily/" />
    <updated>Sun, 01 Mar 2026 14:00:00 GMT</updated>
  </entry>
  <entry>
    <title>   </title>
    <link href="https://www.reddit.com/r/soccer/comments/ghi/empty/" />
  </entry>
</feed>`

const listingJSON = `{"data":{"after":"t3_page2","children":[
  {"data":{"title":"Everton 0 - [1] Fulham - Iwobi 80'","url":"https://v.redd.it/xyz","permalink":"/r/soccer/comments/xyz/everton_0_1_fulham/",
    "created_utc":1772377210,"secure_media":{"reddit_video":{"fallback_url":"https://v.redd.it/xyz/DASH_720.mp4?source=fallback"}}}},
  {"data":{"title":"Liverpool [2] - 1 Everton","url":"https://www.reddit.com/r/soccer/x","url_overridden_by_dest":"https://dubz.link/v/q9",
    "permalink":"/r/soccer/comments/q9/","created_utc":1772377100}},
  {"data":{"title":"Removed post 1-0","url":"https://streamff.co/v/gone","created_utc":1772377000,"removed_by_category":"moderator"}}
]}}`

const listingPage2 = `{"data":{"after":"","children":[
  {"data":{"title":"Old goal","url":"https://streamff.co/v/old","created_utc":1772300000}}
]}}`

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return srv
}

func TestAtomSource_Fetch(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/atom+xml")
		_, _ = w.Write([]byte(atomFeed))
	})

	src := NewAtomSource(srv.URL, domain.SourcePrimary, Options{UserAgent: "test-agent"})

	posts, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 2)

	goal := posts[0]
	assert.Equal(t, "Arsenal [1] - 0 Chelsea - Saka 12'", goal.Title)
	assert.Equal(t, "https://streamff.co/v/abc123", goal.URL)
	assert.Equal(t, "https://www.reddit.com/r/soccer/comments/abc/arsenal_1_0_chelsea/", goal.Permalink)
	assert.Equal(t, time.Date(2026, 3, 1, 15, 0, 5, 0, time.UTC), goal.CreatedAt)
	assert.Equal(t, domain.SourcePrimary, goal.Source)

	talk := posts[1]
	assert.Equal(t, "Daily Discussion Free Talk", talk.Title)
	assert.Equal(t, "https://www.reddit.com/r/soccer/comments/def/daily/", talk.URL, "no [link] anchor falls back to the entry link")
	assert.Equal(t, time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC), talk.CreatedAt)
}

func TestAtomSource_HTTPErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, wantErr: coreerrors.ErrRateLimited},
		{name: "server error", status: http.StatusBadGateway, wantErr: coreerrors.ErrHTTPStatusNotOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := NewAtomSource(srv.URL, domain.SourcePrimary, Options{}).Fetch(context.Background())
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestListingSource_Fetch(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(listingJSON))
	})

	posts, err := NewListingSource(srv.URL+"/r/soccer/new.json?limit=100", domain.SourceFallback, Options{}).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 2)

	assert.Equal(t, "https://v.redd.it/xyz", posts[0].URL)
	assert.Equal(t, "https://v.redd.it/xyz/DASH_720.mp4", posts[0].MediaURL)
	assert.Equal(t, "https://www.reddit.com/r/soccer/comments/xyz/everton_0_1_fulham/", posts[0].Permalink)
	assert.Equal(t, time.Unix(1772377210, 0).UTC(), posts[0].CreatedAt)
	assert.Equal(t, domain.SourceFallback, posts[0].Source)

	assert.Equal(t, "https://dubz.link/v/q9", posts[1].URL)
	assert.Empty(t, posts[1].MediaURL)
}

func TestListingSource_FetchSince(t *testing.T) {
	var afters []string

	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		after := r.URL.Query().Get("after")
		afters = append(afters, after)

		assert.Equal(t, "100", r.URL.Query().Get("limit"))

		if after == "" {
			_, _ = w.Write([]byte(listingJSON))

			return
		}

		_, _ = w.Write([]byte(listingPage2))
	})

	src := NewListingSource(srv.URL+"/new.json?limit=100", domain.SourceFallback, Options{})

	posts, err := src.FetchSince(context.Background(), time.Unix(1772370000, 0))
	require.NoError(t, err)
	assert.Len(t, posts, 2)
	assert.Equal(t, []string{"", "t3_page2"}, afters)
}

type recordingSink struct {
	mu     sync.Mutex
	titles []string
	state  domain.EventState
	err    error
}

func (s *recordingSink) Submit(post domain.CandidatePost) (domain.EventState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.titles = append(s.titles, post.Title)

	return s.state, s.err
}

type staticSource struct {
	name  domain.Source
	posts []domain.CandidatePost
	err   error
}

func (s staticSource) Name() domain.Source { return s.name }

func (s staticSource) Fetch(context.Context) ([]domain.CandidatePost, error) {
	return append([]domain.CandidatePost(nil), s.posts...), s.err
}

func TestPoller_SubmitsOldestFirst(t *testing.T) {
	sink := &recordingSink{state: domain.StateResolving}
	p := NewPoller(sink, nil)

	now := time.Now()
	p.Add(staticSource{name: domain.SourcePrimary, posts: []domain.CandidatePost{
		{Title: "newest", CreatedAt: now},
		{Title: "oldest", CreatedAt: now.Add(-2 * time.Minute)},
		{Title: "middle", CreatedAt: now.Add(-time.Minute)},
	}}, time.Minute)

	n, err := p.PollAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"oldest", "middle", "newest"}, sink.titles)
}

func TestPoller_FailingSourceDoesNotStopOthers(t *testing.T) {
	errDown := errors.New("reddit down")
	sink := &recordingSink{state: domain.StateDuplicate}

	p := NewPoller(sink, nil)
	p.Add(staticSource{name: domain.SourcePrimary, err: errDown}, time.Minute)
	p.Add(staticSource{name: domain.SourceFallback, posts: []domain.CandidatePost{{Title: "a"}}}, time.Minute)

	n, err := p.PollAll(context.Background())
	require.ErrorIs(t, err, errDown)
	assert.Zero(t, n, "duplicates are not counted")
	assert.Equal(t, []string{"a"}, sink.titles)

	tasks := p.Tasks()
	require.Len(t, tasks, 2)
	assert.True(t, strings.HasPrefix(tasks[0].Name, "poll-"))
	assert.True(t, tasks[1].RunOnStart)
}
