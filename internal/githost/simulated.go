package githost

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"contactdir/internal/gateway/entity"
	"contactdir/internal/logging"
)

const (
	DefaultSimMinDelay = 100 * time.Millisecond
	DefaultSimMaxDelay = 200 * time.Millisecond
)

// SimulatedConfig configures SimulatedTransport. Zero delays disable pacing,
// which is what tests want.
type SimulatedConfig struct {
	MinDelay time.Duration
	MaxDelay time.Duration
	Logger   *zap.Logger
}

// SimulatedTransport implements Transport on top of a SimStore. Each call
// waits a short random delay first so progress indicators behave as they
// would against the real host.
type SimulatedTransport struct {
	store    *SimStore
	minDelay time.Duration
	maxDelay time.Duration
	logger   *zap.Logger
}

var _ Transport = (*SimulatedTransport)(nil)

func NewSimulated(store *SimStore, cfg SimulatedConfig) *SimulatedTransport {
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	return &SimulatedTransport{
		store:    store,
		minDelay: cfg.MinDelay,
		maxDelay: cfg.MaxDelay,
		logger:   logging.OrNop(cfg.Logger).Named("githost.sim"),
	}
}

// Store exposes the backing store for inspection.
func (t *SimulatedTransport) Store() *SimStore { return t.store }

func (t *SimulatedTransport) Upstream() Upstream { return t.store.upstream }
func (t *SimulatedTransport) Simulated() bool    { return true }

func (t *SimulatedTransport) pause(ctx context.Context) error {
	d := t.minDelay
	if spread := t.maxDelay - t.minDelay; spread > 0 {
		d += time.Duration(rand.Int63n(int64(spread)))
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (t *SimulatedTransport) CurrentUser(ctx context.Context, cred Credential) (entity.User, error) {
	if err := t.pause(ctx); err != nil {
		return entity.User{}, err
	}
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLocked("current_user", RepoRef{}, "", "")
	u, err := s.userLocked(cred)
	if err != nil {
		return entity.User{}, fmt.Errorf("get current user: %w", err)
	}
	return u, nil
}

func (t *SimulatedTransport) GetFork(ctx context.Context, cred Credential, username string) (*Repo, error) {
	if err := t.pause(ctx); err != nil {
		return nil, err
	}
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	username = entity.NormalizeLogin(username)
	s.recordLocked("get_fork", RepoRef{Owner: username, Name: s.upstream.Repo}, "", "")

	if r, ok := s.repos[repoKey(RepoRef{Owner: username, Name: s.upstream.Repo})]; ok && r.repo.Fork {
		if s.consumeHiddenLocked(r.repo) {
			return nil, nil
		}
		repo := r.repo
		if repo.Parent == "" {
			t.logger.Warn("fork has no parent metadata, accepting it",
				zap.String("repo", repo.FullName), zap.String("upstream", s.upstream.FullName()))
			return &repo, nil
		}
		if parentMatches(repo.Parent, s.upstream) {
			return &repo, nil
		}
		t.logger.Info("same-named repo is a fork of another parent",
			zap.String("repo", repo.FullName), zap.String("parent", repo.Parent))
	}
	for _, r := range s.repos {
		if !strings.EqualFold(r.repo.Owner, username) || !r.repo.Fork {
			continue
		}
		if !parentMatches(r.repo.Parent, s.upstream) {
			continue
		}
		if s.consumeHiddenLocked(r.repo) {
			return nil, nil
		}
		t.logger.Info("found upstream fork under a different name", zap.String("repo", r.repo.FullName))
		repo := r.repo
		return &repo, nil
	}
	return nil, nil
}

func (s *SimStore) consumeHiddenLocked(r Repo) bool {
	key := repoKey(r.Ref())
	if n := s.hiddenFor[key]; n > 0 {
		s.hiddenFor[key] = n - 1
		return true
	}
	return false
}

func (t *SimulatedTransport) CreateFork(ctx context.Context, cred Credential, onBehalfOf string) (Repo, error) {
	if err := t.pause(ctx); err != nil {
		return Repo{}, err
	}
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	owner := entity.NormalizeLogin(onBehalfOf)
	if owner == "" {
		u, err := s.userLocked(cred)
		if err != nil {
			return Repo{}, fmt.Errorf("create fork: %w", err)
		}
		owner = u.Login
	}
	s.recordLocked("create_fork", RepoRef{Owner: owner, Name: s.upstream.Repo}, "", "")
	_, existed := s.repos[repoKey(RepoRef{Owner: owner, Name: s.upstream.Repo})]
	repo := s.forkLocked(owner, s.upstream.Repo)
	if !existed && s.forkLag > 0 {
		s.hiddenFor[repoKey(repo.Ref())] = s.forkLag
	}
	return repo, nil
}

func (t *SimulatedTransport) SyncFork(ctx context.Context, cred Credential, fork RepoRef) {
	if err := t.pause(ctx); err != nil {
		return
	}
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLocked("sync_fork", fork, s.upstream.DefaultBranch, "")
}

func (t *SimulatedTransport) BranchHeadSHA(ctx context.Context, cred Credential, repo RepoRef, branch string) (string, error) {
	if err := t.pause(ctx); err != nil {
		return "", err
	}
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLocked("get_branch", repo, branch, "")
	r, err := s.repoLocked(repo)
	if err != nil {
		return "", err
	}
	sha, ok := r.heads[branch]
	if !ok {
		return "", &NotFoundError{
			Resource: "branch",
			Message:  fmt.Sprintf("branch %q not found in %s", branch, repo.FullName()),
		}
	}
	return sha, nil
}

func (t *SimulatedTransport) CreateBranch(ctx context.Context, cred Credential, repo RepoRef, name, fromSHA string) error {
	if err := t.pause(ctx); err != nil {
		return err
	}
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLocked("create_branch", repo, name, "")
	r, err := s.repoLocked(repo)
	if err != nil {
		return err
	}
	if _, exists := r.heads[name]; exists {
		return &ConflictError{Message: fmt.Sprintf("branch %q already exists in %s", name, repo.FullName())}
	}
	files, ok := r.snapshot[fromSHA]
	if !ok {
		return &APIError{Status: 422, Method: "POST", URL: repo.FullName() + "/git/refs", Body: "Object does not exist"}
	}
	r.heads[name] = fromSHA
	r.files[name] = copyFiles(files)
	return nil
}

func (t *SimulatedTransport) BranchExists(ctx context.Context, cred Credential, repo RepoRef, name string) (bool, error) {
	if err := t.pause(ctx); err != nil {
		return false, err
	}
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLocked("branch_exists", repo, name, "")
	r, err := s.repoLocked(repo)
	if err != nil {
		return false, err
	}
	_, ok := r.heads[name]
	return ok, nil
}

func (t *SimulatedTransport) ReadFile(ctx context.Context, cred Credential, repo RepoRef, path, ref string) (*File, error) {
	if err := t.pause(ctx); err != nil {
		return nil, err
	}
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLocked("read_file", repo, ref, path)
	r, err := s.repoLocked(repo)
	if err != nil {
		return nil, nil
	}
	if ref == "" {
		ref = r.repo.DefaultBranch
	}
	files, ok := r.files[ref]
	if !ok {
		return nil, nil
	}
	f, ok := files[path]
	if !ok {
		return nil, nil
	}
	return &File{Content: f.content, SHA: f.sha}, nil
}

func (t *SimulatedTransport) WriteFile(ctx context.Context, cred Credential, repo RepoRef, req WriteRequest) (WriteResult, error) {
	if err := t.pause(ctx); err != nil {
		return WriteResult{}, err
	}
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLocked("write_file", repo, req.Branch, req.Path)
	r, err := s.repoLocked(repo)
	if err != nil {
		return WriteResult{}, err
	}
	files, ok := r.files[req.Branch]
	if !ok {
		return WriteResult{}, &NotFoundError{
			Resource: "branch",
			Message:  fmt.Sprintf("branch %q not found in %s", req.Branch, repo.FullName()),
		}
	}
	current, exists := files[req.Path]
	switch {
	case exists && req.ExpectedSHA == "":
		return WriteResult{}, &ConflictError{Message: fmt.Sprintf("%s exists on %s but no sha was supplied", req.Path, req.Branch)}
	case exists && req.ExpectedSHA != current.sha:
		return WriteResult{}, &ConflictError{Message: fmt.Sprintf("%s on %s does not match %s", req.Path, req.Branch, req.ExpectedSHA)}
	case !exists && req.ExpectedSHA != "":
		return WriteResult{}, &ConflictError{Message: fmt.Sprintf("%s does not exist on %s", req.Path, req.Branch)}
	}
	f := simFile{content: req.Content, sha: blobSHA(req.Content)}
	files[req.Path] = f
	commit := s.newCommitLocked()
	r.heads[req.Branch] = commit
	r.snapshot[commit] = copyFiles(files)
	return WriteResult{ContentSHA: f.sha, CommitSHA: commit}, nil
}

func (t *SimulatedTransport) OpenPullRequest(ctx context.Context, cred Credential, in PullRequestInput) (PullRequest, error) {
	if err := t.pause(ctx); err != nil {
		return PullRequest{}, err
	}
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLocked("open_pull_request", s.upstream.Ref(), in.HeadBranch, "")

	head := in.HeadOwner + ":" + in.HeadBranch
	var headRepo *simRepo
	for _, r := range s.repos {
		if !strings.EqualFold(r.repo.Owner, in.HeadOwner) {
			continue
		}
		if (r.repo.Fork && parentMatches(r.repo.Parent, s.upstream)) || repoKey(r.repo.Ref()) == repoKey(s.upstream.Ref()) {
			headRepo = r
			break
		}
	}
	if headRepo == nil {
		return PullRequest{}, &APIError{Status: 422, Method: "POST", URL: s.upstream.FullName() + "/pulls", Body: "head repository " + in.HeadOwner + " has no fork"}
	}
	if _, ok := headRepo.heads[in.HeadBranch]; !ok {
		return PullRequest{}, &APIError{Status: 422, Method: "POST", URL: s.upstream.FullName() + "/pulls", Body: "head branch " + head + " does not exist"}
	}
	for _, p := range s.pulls {
		if strings.EqualFold(p.Head, head) {
			return PullRequest{}, &APIError{Status: 422, Method: "POST", URL: s.upstream.FullName() + "/pulls", Body: "A pull request already exists for " + head}
		}
	}
	s.nextPR++
	pr := PullRequest{
		Number: s.nextPR,
		URL:    fmt.Sprintf("https://github.com/%s/pull/%d", s.upstream.FullName(), s.nextPR),
		Title:  in.Title,
	}
	s.pulls = append(s.pulls, simPull{PullRequest: pr, Head: head, Base: s.upstream.DefaultBranch, Body: in.Body})
	return pr, nil
}
