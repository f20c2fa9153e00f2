package githost

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"contactdir/internal/gateway/entity"
	"contactdir/internal/logging"
)

const (
	DefaultBaseURL   = "https://api.github.com"
	DefaultTimeout   = 8 * time.Second
	DefaultUserAgent = "contactdir-contrib/1.0"
	apiVersion       = "2022-11-28"
	maxErrorBody     = 2048
	forkListPageSize = 100
)

// LiveConfig configures LiveTransport.
type LiveConfig struct {
	BaseURL   string
	Upstream  Upstream
	Timeout   time.Duration
	UserAgent string
	// RequestsPerSecond throttles outgoing calls client side; 0 disables it.
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
	Logger            *zap.Logger
}

// LiveTransport implements Transport against the GitHub REST API.
type LiveTransport struct {
	baseURL   string
	upstream  Upstream
	timeout   time.Duration
	userAgent string
	http      *http.Client
	limiter   *rpsLimiter
	users     *userCache
	logger    *zap.Logger

	mu       sync.Mutex
	lastRate RateLimitHeaders
	hasRate  bool
}

var _ Transport = (*LiveTransport)(nil)

func NewLive(cfg LiveConfig) *LiveTransport {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Upstream.DefaultBranch == "" {
		cfg.Upstream.DefaultBranch = "main"
	}
	return &LiveTransport{
		baseURL:   baseURL,
		upstream:  cfg.Upstream,
		timeout:   timeout,
		userAgent: ua,
		http:      client,
		limiter:   newRPSLimiter(cfg.RequestsPerSecond, cfg.Burst),
		users:     newUserCache(0, 0),
		logger:    logging.OrNop(cfg.Logger).Named("githost.live"),
	}
}

// Close stops the background limiter refill.
func (t *LiveTransport) Close() error {
	t.limiter.Stop()
	return nil
}

func (t *LiveTransport) Upstream() Upstream { return t.upstream }
func (t *LiveTransport) Simulated() bool    { return false }

// LastRateLimit returns the rate-limit headers of the most recent response.
func (t *LiveTransport) LastRateLimit() (RateLimitHeaders, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastRate, t.hasRate
}

type ghUser struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
}

type ghRepo struct {
	Name          string  `json:"name"`
	FullName      string  `json:"full_name"`
	Fork          bool    `json:"fork"`
	HTMLURL       string  `json:"html_url"`
	DefaultBranch string  `json:"default_branch"`
	Owner         ghUser  `json:"owner"`
	Parent        *ghRepo `json:"parent,omitempty"`
}

func (r ghRepo) toRepo() Repo {
	out := Repo{
		Owner:         r.Owner.Login,
		Name:          r.Name,
		FullName:      r.FullName,
		Fork:          r.Fork,
		DefaultBranch: r.DefaultBranch,
		HTMLURL:       r.HTMLURL,
	}
	if r.Parent != nil {
		out.Parent = r.Parent.FullName
	}
	return out
}

type ghRef struct {
	Ref    string `json:"ref"`
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

type ghContent struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
	SHA      string `json:"sha"`
}

type ghPutContentReq struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

type ghPutContentResp struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

type ghPullReq struct {
	Title               string `json:"title"`
	Body                string `json:"body"`
	Head                string `json:"head"`
	Base                string `json:"base"`
	MaintainerCanModify bool   `json:"maintainer_can_modify"`
}

type ghPull struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
	Title   string `json:"title"`
}

func (t *LiveTransport) CurrentUser(ctx context.Context, cred Credential) (entity.User, error) {
	if cred.empty() {
		return entity.User{}, &AuthError{Status: http.StatusUnauthorized, Message: "no access token"}
	}
	if u, ok := t.users.get(cred); ok {
		return u, nil
	}
	var out ghUser
	if err := t.do(ctx, cred, http.MethodGet, "/user", nil, &out); err != nil {
		if IsAuth(err) {
			t.users.forget(cred)
		}
		return entity.User{}, fmt.Errorf("get current user: %w", err)
	}
	u := entity.User{Login: out.Login, ID: out.ID}
	t.users.put(cred, u)
	return u, nil
}

func (t *LiveTransport) GetFork(ctx context.Context, cred Credential, username string) (*Repo, error) {
	username = entity.NormalizeLogin(username)
	var direct ghRepo
	err := t.do(ctx, cred, http.MethodGet, repoPath(RepoRef{Owner: username, Name: t.upstream.Repo}), nil, &direct)
	switch {
	case err == nil:
		if direct.Fork {
			repo := direct.toRepo()
			if repo.Parent == "" {
				t.logger.Warn("fork has no parent metadata, accepting it",
					zap.String("repo", repo.FullName), zap.String("upstream", t.upstream.FullName()))
				return &repo, nil
			}
			if parentMatches(repo.Parent, t.upstream) {
				return &repo, nil
			}
			t.logger.Info("same-named repo is a fork of another parent",
				zap.String("repo", repo.FullName), zap.String("parent", repo.Parent))
		}
	case IsNotFound(err):
	default:
		return nil, fmt.Errorf("get fork %s/%s: %w", username, t.upstream.Repo, err)
	}
	return t.findRenamedFork(ctx, cred, username)
}

// findRenamedFork scans one page of the user's repositories for a fork whose
// parent is the upstream. The code host names a fork differently when the
// user already owns a repository with the upstream's name.
func (t *LiveTransport) findRenamedFork(ctx context.Context, cred Credential, username string) (*Repo, error) {
	q := url.Values{}
	q.Set("type", "owner")
	q.Set("sort", "updated")
	q.Set("per_page", fmt.Sprint(forkListPageSize))
	var listed []ghRepo
	path := "/users/" + url.PathEscape(username) + "/repos?" + q.Encode()
	if err := t.do(ctx, cred, http.MethodGet, path, nil, &listed); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list repos of %s: %w", username, err)
	}
	for _, candidate := range listed {
		if !candidate.Fork {
			continue
		}
		repo := candidate.toRepo()
		if repo.Parent == "" {
			// Listings omit parent; the detail endpoint carries it.
			var detail ghRepo
			if err := t.do(ctx, cred, http.MethodGet, repoPath(repo.Ref()), nil, &detail); err != nil {
				t.logger.Debug("fork detail lookup failed", zap.String("repo", repo.FullName), zap.Error(err))
				continue
			}
			repo = detail.toRepo()
		}
		if parentMatches(repo.Parent, t.upstream) {
			t.logger.Info("found upstream fork under a different name",
				zap.String("repo", repo.FullName), zap.String("upstream", t.upstream.FullName()))
			return &repo, nil
		}
	}
	return nil, nil
}

func (t *LiveTransport) CreateFork(ctx context.Context, cred Credential, onBehalfOf string) (Repo, error) {
	var out ghRepo
	body := map[string]any{"default_branch_only": true}
	if err := t.do(ctx, cred, http.MethodPost, repoPath(t.upstream.Ref())+"/forks", body, &out); err != nil {
		return Repo{}, fmt.Errorf("create fork of %s for %s: %w", t.upstream.FullName(), onBehalfOf, err)
	}
	repo := out.toRepo()
	if repo.Parent == "" {
		repo.Parent = t.upstream.FullName()
	}
	return repo, nil
}

func (t *LiveTransport) SyncFork(ctx context.Context, cred Credential, fork RepoRef) {
	body := map[string]string{"branch": t.upstream.DefaultBranch}
	err := t.do(ctx, cred, http.MethodPost, repoPath(fork)+"/merge-upstream", body, nil)
	if err == nil {
		return
	}
	var apiErr *APIError
	var conflictErr *ConflictError
	if errors.As(err, &conflictErr) || (errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict) {
		t.logger.Debug("fork already up to date", zap.String("repo", fork.FullName()))
		return
	}
	t.logger.Warn("fork sync failed, continuing", zap.String("repo", fork.FullName()), zap.Error(err))
}

func (t *LiveTransport) BranchHeadSHA(ctx context.Context, cred Credential, repo RepoRef, branch string) (string, error) {
	var out ghRef
	err := t.do(ctx, cred, http.MethodGet, repoPath(repo)+"/git/ref/heads/"+escapePath(branch), nil, &out)
	if err != nil {
		if IsNotFound(err) {
			return "", &NotFoundError{
				Resource: "branch",
				Message:  fmt.Sprintf("branch %q not found in %s", branch, repo.FullName()),
			}
		}
		return "", fmt.Errorf("get branch %s in %s: %w", branch, repo.FullName(), err)
	}
	return out.Object.SHA, nil
}

func (t *LiveTransport) CreateBranch(ctx context.Context, cred Credential, repo RepoRef, name, fromSHA string) error {
	body := map[string]string{"ref": "refs/heads/" + name, "sha": fromSHA}
	err := t.do(ctx, cred, http.MethodPost, repoPath(repo)+"/git/refs", body, nil)
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnprocessableEntity &&
		strings.Contains(strings.ToLower(apiErr.Body), "already exists") {
		return &ConflictError{Message: fmt.Sprintf("branch %q already exists in %s", name, repo.FullName())}
	}
	return fmt.Errorf("create branch %s in %s: %w", name, repo.FullName(), err)
}

func (t *LiveTransport) BranchExists(ctx context.Context, cred Credential, repo RepoRef, name string) (bool, error) {
	_, err := t.BranchHeadSHA(ctx, cred, repo, name)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, err
}

func (t *LiveTransport) ReadFile(ctx context.Context, cred Credential, repo RepoRef, path, ref string) (*File, error) {
	p := repoPath(repo) + "/contents/" + escapePath(path)
	if ref != "" {
		p += "?ref=" + url.QueryEscape(ref)
	}
	var out ghContent
	if err := t.do(ctx, cred, http.MethodGet, p, nil, &out); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s@%s in %s: %w", path, ref, repo.FullName(), err)
	}
	if out.Type != "" && out.Type != "file" {
		return nil, fmt.Errorf("read %s in %s: path is a %s, not a file", path, repo.FullName(), out.Type)
	}
	content, err := decodeContent(out.Content, out.Encoding)
	if err != nil {
		return nil, fmt.Errorf("decode %s in %s: %w", path, repo.FullName(), err)
	}
	return &File{Content: content, SHA: out.SHA}, nil
}

func (t *LiveTransport) WriteFile(ctx context.Context, cred Credential, repo RepoRef, req WriteRequest) (WriteResult, error) {
	body := ghPutContentReq{
		Message: req.Message,
		Content: base64.StdEncoding.EncodeToString([]byte(req.Content)),
		Branch:  req.Branch,
		SHA:     req.ExpectedSHA,
	}
	var out ghPutContentResp
	err := t.do(ctx, cred, http.MethodPut, repoPath(repo)+"/contents/"+escapePath(req.Path), body, &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnprocessableEntity &&
			strings.Contains(strings.ToLower(apiErr.Body), "sha") {
			return WriteResult{}, &ConflictError{Message: fmt.Sprintf("%s on %s: %s", req.Path, req.Branch, apiErr.Body)}
		}
		return WriteResult{}, fmt.Errorf("write %s on %s in %s: %w", req.Path, req.Branch, repo.FullName(), err)
	}
	return WriteResult{ContentSHA: out.Content.SHA, CommitSHA: out.Commit.SHA}, nil
}

func (t *LiveTransport) OpenPullRequest(ctx context.Context, cred Credential, in PullRequestInput) (PullRequest, error) {
	body := ghPullReq{
		Title:               in.Title,
		Body:                in.Body,
		Head:                in.HeadOwner + ":" + in.HeadBranch,
		Base:                t.upstream.DefaultBranch,
		MaintainerCanModify: true,
	}
	var out ghPull
	if err := t.do(ctx, cred, http.MethodPost, repoPath(t.upstream.Ref())+"/pulls", body, &out); err != nil {
		return PullRequest{}, fmt.Errorf("open pull request from %s:%s: %w", in.HeadOwner, in.HeadBranch, err)
	}
	return PullRequest{Number: out.Number, URL: out.HTMLURL, Title: out.Title}, nil
}

// do performs one bounded API call. A non-nil out receives the decoded JSON body.
func (t *LiveTransport) do(ctx context.Context, cred Credential, method, path string, body any, out any) error {
	if err := t.limiter.Acquire(ctx); err != nil {
		return err
	}
	target := t.baseURL + path

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", t.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !cred.empty() {
		req.Header.Set("Authorization", "Bearer "+string(cred))
	}

	started := time.Now()
	resp, err := t.http.Do(req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return &TimeoutError{Bound: t.timeout, URL: target}
		}
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return &TimeoutError{Bound: t.timeout, URL: target}
		}
		return fmt.Errorf("read response of %s %s: %w", method, target, err)
	}

	rate, hasRate := parseRateLimitHeaders(resp.Header)
	if hasRate {
		t.mu.Lock()
		t.lastRate, t.hasRate = rate, true
		t.mu.Unlock()
	}
	t.logger.Debug("github call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("rate_remaining", rate.Remaining))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, target, err)
		}
		return nil
	}
	return classifyStatus(method, target, resp.StatusCode, respBody, rate, hasRate)
}

func classifyStatus(method, target string, status int, body []byte, rate RateLimitHeaders, hasRate bool) error {
	msg := apiMessage(body)
	switch {
	case (status == http.StatusForbidden || status == http.StatusTooManyRequests) && hasRate && rate.Exhausted():
		return &RateLimitError{RetryAfter: rate.NextWait(time.Now()), Message: msg}
	case status == http.StatusTooManyRequests:
		return &RateLimitError{Message: msg}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthError{Status: status, Message: msg}
	case status == http.StatusNotFound:
		return &NotFoundError{Resource: method + " " + target, Message: fmt.Sprintf("%s %s: not found", method, target)}
	case status == http.StatusConflict:
		return &ConflictError{Message: msg}
	default:
		return &APIError{Status: status, Method: method, URL: target, Body: msg}
	}
}

// apiMessage extracts the "message" field of a GitHub error body, falling back
// to the truncated raw body.
func apiMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return strings.TrimSpace(string(body))
}

func decodeContent(content, encoding string) (string, error) {
	if encoding != "" && encoding != "base64" {
		return content, nil
	}
	// The contents API wraps base64 at 60 columns.
	cleaned := strings.NewReplacer("\n", "", "\r", "").Replace(content)
	raw, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func repoPath(r RepoRef) string {
	return "/repos/" + url.PathEscape(r.Owner) + "/" + url.PathEscape(r.Name)
}

func escapePath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
