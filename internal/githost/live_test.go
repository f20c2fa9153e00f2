package githost

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var liveUpstream = Upstream{Owner: "contactdir", Repo: "directory", DefaultBranch: "main"}

// methodMux accepts Go 1.22-style "METHOD /path" patterns on top of the
// Go 1.21 ServeMux, which only understands bare paths.
type methodMux struct{ *http.ServeMux }

func newMethodMux() *methodMux { return &methodMux{http.NewServeMux()} }

func (m *methodMux) HandleFunc(pattern string, h func(http.ResponseWriter, *http.Request)) {
	method, path, ok := strings.Cut(pattern, " ")
	if !ok {
		m.ServeMux.HandleFunc(pattern, h)
		return
	}
	m.ServeMux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	})
}

func newLiveServer(t *testing.T, mux *methodMux, timeout time.Duration) *LiveTransport {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	lt := NewLive(LiveConfig{BaseURL: srv.URL, Upstream: liveUpstream, Timeout: timeout})
	t.Cleanup(func() { _ = lt.Close() })
	return lt
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestLive_CurrentUserHeadersAndCache(t *testing.T) {
	var hits atomic.Int32
	mux := newMethodMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		assert.NotEmpty(t, r.Header.Get("X-GitHub-Api-Version"))
		w.Header().Set("X-RateLimit-Limit", "5000")
		w.Header().Set("X-RateLimit-Remaining", "4999")
		writeJSON(w, http.StatusOK, map[string]any{"login": "octo", "id": 7})
	})
	lt := newLiveServer(t, mux, time.Second)

	for i := 0; i < 2; i++ {
		u, err := lt.CurrentUser(context.Background(), "tok")
		require.NoError(t, err)
		assert.Equal(t, "octo", u.Login)
		assert.Equal(t, int64(7), u.ID)
	}
	assert.Equal(t, int32(1), hits.Load())

	rate, ok := lt.LastRateLimit()
	require.True(t, ok)
	assert.Equal(t, 4999, rate.Remaining)
}

func TestLive_UnauthorizedIsAuthError(t *testing.T) {
	mux := newMethodMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Bad credentials"})
	})
	lt := newLiveServer(t, mux, time.Second)

	_, err := lt.CurrentUser(context.Background(), "expired")
	require.Error(t, err)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.Status)
	assert.Equal(t, "Bad credentials", authErr.Message)
	assert.Equal(t, CodeUnauthorized, CodeOf(err))
}

func TestLive_EmptyCredentialNeverCallsOut(t *testing.T) {
	mux := newMethodMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	})
	lt := newLiveServer(t, mux, time.Second)
	_, err := lt.CurrentUser(context.Background(), "  ")
	assert.True(t, IsAuth(err))
}

func TestLive_RateLimitedForbiddenIsNotAuth(t *testing.T) {
	mux := newMethodMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "60")
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("Retry-After", "30")
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "API rate limit exceeded"})
	})
	lt := newLiveServer(t, mux, time.Second)

	_, err := lt.CurrentUser(context.Background(), "tok")
	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, 30*time.Second, rateErr.RetryAfter)
	assert.False(t, IsAuth(err))
	assert.Equal(t, CodeRateLimit, CodeOf(err))
}

func TestLive_TimeoutError(t *testing.T) {
	mux := newMethodMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	lt := newLiveServer(t, mux, 30*time.Millisecond)

	_, err := lt.CurrentUser(context.Background(), "tok")
	var timeoutErr *TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 30*time.Millisecond, timeoutErr.Bound)
	assert.True(t, strings.HasSuffix(timeoutErr.URL, "/user"))
	assert.Equal(t, CodeTimeout, CodeOf(err))
}

func TestLive_CallerCancellationIsNotTimeout(t *testing.T) {
	mux := newMethodMux()
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	lt := newLiveServer(t, mux, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := lt.CurrentUser(ctx, "tok")
	require.Error(t, err)
	var timeoutErr *TimeoutError
	assert.False(t, errors.As(err, &timeoutErr))
}

func TestLive_GetForkDirect(t *testing.T) {
	mux := newMethodMux()
	mux.HandleFunc("GET /repos/octo/directory", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"name": "directory", "full_name": "octo/directory", "fork": true, "default_branch": "main",
			"owner":  map[string]any{"login": "octo"},
			"parent": map[string]any{"full_name": "contactdir/directory"},
		})
	})
	lt := newLiveServer(t, mux, time.Second)

	fork, err := lt.GetFork(context.Background(), "tok", "octo")
	require.NoError(t, err)
	require.NotNil(t, fork)
	assert.Equal(t, "octo/directory", fork.FullName)
	assert.Equal(t, "contactdir/directory", fork.Parent)
}

func TestLive_GetForkFallsBackToRenamedFork(t *testing.T) {
	mux := newMethodMux()
	mux.HandleFunc("GET /repos/octo/directory", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	})
	mux.HandleFunc("GET /users/octo/repos", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		writeJSON(w, http.StatusOK, []map[string]any{
			{"name": "dotfiles", "full_name": "octo/dotfiles", "fork": false, "owner": map[string]any{"login": "octo"}},
			{"name": "directory-1", "full_name": "octo/directory-1", "fork": true, "owner": map[string]any{"login": "octo"}},
		})
	})
	mux.HandleFunc("GET /repos/octo/directory-1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"name": "directory-1", "full_name": "octo/directory-1", "fork": true, "default_branch": "main",
			"owner":  map[string]any{"login": "octo"},
			"parent": map[string]any{"full_name": "ContactDir/Directory"},
		})
	})
	lt := newLiveServer(t, mux, time.Second)

	fork, err := lt.GetFork(context.Background(), "tok", "octo")
	require.NoError(t, err)
	require.NotNil(t, fork)
	assert.Equal(t, "directory-1", fork.Name)
	assert.Equal(t, RepoRef{Owner: "octo", Name: "directory-1"}, fork.Ref())
}

func TestLive_GetForkNone(t *testing.T) {
	mux := newMethodMux()
	mux.HandleFunc("GET /repos/octo/directory", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	})
	mux.HandleFunc("GET /users/octo/repos", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{})
	})
	lt := newLiveServer(t, mux, time.Second)

	fork, err := lt.GetFork(context.Background(), "tok", "octo")
	require.NoError(t, err)
	assert.Nil(t, fork)
}

func TestLive_ReadFile(t *testing.T) {
	content := strings.Repeat("export const companyLogos = {};\n", 4)
	encoded := base64.StdEncoding.EncodeToString([]byte(content))
	wrapped := encoded[:60] + "\n" + encoded[60:]

	mux := newMethodMux()
	mux.HandleFunc("GET /repos/octo/directory/contents/src/components/company-logos.tsx", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ref") != "feature" {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"type": "file", "encoding": "base64", "content": wrapped, "sha": "abc"})
	})
	lt := newLiveServer(t, mux, time.Second)
	repo := RepoRef{Owner: "octo", Name: "directory"}

	f, err := lt.ReadFile(context.Background(), "tok", repo, "src/components/company-logos.tsx", "feature")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, content, f.Content)
	assert.Equal(t, "abc", f.SHA)

	missing, err := lt.ReadFile(context.Background(), "tok", repo, "src/components/company-logos.tsx", "main")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLive_WriteFile(t *testing.T) {
	mux := newMethodMux()
	mux.HandleFunc("PUT /repos/octo/directory/contents/data/companies/acme.json", func(w http.ResponseWriter, r *http.Request) {
		var req ghPutContentReq
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		raw, err := base64.StdEncoding.DecodeString(req.Content)
		assert.NoError(t, err)
		assert.Equal(t, "{}\n", string(raw))
		assert.Equal(t, "feature", req.Branch)
		if req.SHA == "stale" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "sha does not match"})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"content": map[string]string{"sha": "blob1"},
			"commit":  map[string]string{"sha": "commit1"},
		})
	})
	lt := newLiveServer(t, mux, time.Second)
	repo := RepoRef{Owner: "octo", Name: "directory"}
	req := WriteRequest{Path: "data/companies/acme.json", Content: "{}\n", Message: "Add acme", Branch: "feature"}

	res, err := lt.WriteFile(context.Background(), "tok", repo, req)
	require.NoError(t, err)
	assert.Equal(t, WriteResult{ContentSHA: "blob1", CommitSHA: "commit1"}, res)

	req.ExpectedSHA = "stale"
	_, err = lt.WriteFile(context.Background(), "tok", repo, req)
	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestLive_Branches(t *testing.T) {
	mux := newMethodMux()
	mux.HandleFunc("GET /repos/octo/directory/git/ref/heads/main", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ref": "refs/heads/main", "object": map[string]string{"sha": "head1"}})
	})
	mux.HandleFunc("GET /repos/octo/directory/git/ref/heads/gone", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	})
	mux.HandleFunc("POST /repos/octo/directory/git/refs", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["ref"] == "refs/heads/main" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Reference already exists"})
			return
		}
		assert.Equal(t, "head1", body["sha"])
		writeJSON(w, http.StatusCreated, map[string]any{"ref": body["ref"]})
	})
	lt := newLiveServer(t, mux, time.Second)
	ctx := context.Background()
	repo := RepoRef{Owner: "octo", Name: "directory"}

	sha, err := lt.BranchHeadSHA(ctx, "tok", repo, "main")
	require.NoError(t, err)
	assert.Equal(t, "head1", sha)

	_, err = lt.BranchHeadSHA(ctx, "tok", repo, "gone")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Contains(t, nf.Error(), `"gone"`)
	assert.Contains(t, nf.Error(), "octo/directory")

	exists, err := lt.BranchExists(ctx, "tok", repo, "gone")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, lt.CreateBranch(ctx, "tok", repo, "api-add-acme-octo-1", "head1"))
	err = lt.CreateBranch(ctx, "tok", repo, "main", "head1")
	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestLive_OpenPullRequest(t *testing.T) {
	mux := newMethodMux()
	mux.HandleFunc("POST /repos/contactdir/directory/pulls", func(w http.ResponseWriter, r *http.Request) {
		var req ghPullReq
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "octo:api-add-acme-octo-1", req.Head)
		assert.Equal(t, "main", req.Base)
		writeJSON(w, http.StatusCreated, map[string]any{
			"number": 12, "html_url": "https://github.com/contactdir/directory/pull/12", "title": req.Title,
		})
	})
	lt := newLiveServer(t, mux, time.Second)

	pr, err := lt.OpenPullRequest(context.Background(), "tok", PullRequestInput{
		HeadOwner: "octo", HeadBranch: "api-add-acme-octo-1", Title: "Add: Acme", Body: "body",
	})
	require.NoError(t, err)
	assert.Equal(t, PullRequest{Number: 12, URL: "https://github.com/contactdir/directory/pull/12", Title: "Add: Acme"}, pr)
}

func TestLive_SyncForkSwallowsConflict(t *testing.T) {
	var hits atomic.Int32
	mux := newMethodMux()
	mux.HandleFunc("POST /repos/octo/directory/merge-upstream", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusConflict, map[string]string{"message": "merge conflict"})
	})
	lt := newLiveServer(t, mux, time.Second)

	lt.SyncFork(context.Background(), "tok", RepoRef{Owner: "octo", Name: "directory"})
	assert.Equal(t, int32(1), hits.Load())
}
