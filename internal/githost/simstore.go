package githost

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"contactdir/internal/gateway/entity"
)

// DefaultSimLogin is the identity SimStore reports for tokens it was not seeded with.
const DefaultSimLogin = "test-contributor"

// Call is one primitive invocation recorded by SimStore, in execution order.
type Call struct {
	Seq  int
	Op   string
	Repo string
	Ref  string
	Path string
	At   time.Time
}

type simFile struct {
	content string
	sha     string
}

type simRepo struct {
	repo     Repo
	heads    map[string]string             // branch -> head commit sha
	files    map[string]map[string]simFile // branch -> path -> file
	snapshot map[string]map[string]simFile // commit sha -> files at that commit
}

type simPull struct {
	PullRequest
	Head string
	Base string
	Body string
}

// SimStore is the in-process stand-in for the code host used in test mode.
// It is safe for concurrent use; Reset returns it to the freshly seeded state.
type SimStore struct {
	upstream Upstream

	mu        sync.Mutex
	users     map[Credential]entity.User
	repos     map[string]*simRepo // lower(owner/name)
	pulls     []simPull
	calls     []Call
	seq       int
	commits   int
	nextPR    int
	nextID    int64
	forkLag   int
	hiddenFor map[string]int // lower(owner/name) -> remaining invisible GetFork reads
}

// NewSimStore creates a store whose upstream repository exists with an empty default branch.
func NewSimStore(up Upstream) *SimStore {
	if up.DefaultBranch == "" {
		up.DefaultBranch = "main"
	}
	s := &SimStore{upstream: up}
	s.resetLocked()
	return s
}

func (s *SimStore) Upstream() Upstream { return s.upstream }

// Reset clears every repository, user, pull request, call and counter, then
// re-seeds the upstream repository.
func (s *SimStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *SimStore) resetLocked() {
	s.users = make(map[Credential]entity.User)
	s.repos = make(map[string]*simRepo)
	s.pulls = nil
	s.calls = nil
	s.seq = 0
	s.commits = 0
	s.nextPR = 0
	s.nextID = 1000
	s.forkLag = 0
	s.hiddenFor = make(map[string]int)
	s.addRepoLocked(Repo{
		Owner:         s.upstream.Owner,
		Name:          s.upstream.Repo,
		FullName:      s.upstream.FullName(),
		DefaultBranch: s.upstream.DefaultBranch,
	}, nil)
}

// SetForkVisibilityLag makes a newly created fork invisible to the next n GetFork calls.
func (s *SimStore) SetForkVisibilityLag(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forkLag = n
}

// SeedUser binds a credential to an identity.
func (s *SimStore) SeedUser(cred Credential, u entity.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[cred] = u
}

// SeedFork registers owner/name as a fork of the upstream, copying its default branch.
func (s *SimStore) SeedFork(owner, name string) Repo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forkLocked(owner, name)
}

// SeedRepo registers a plain repository that is not a fork of the upstream.
func (s *SimStore) SeedRepo(r Repo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.FullName == "" {
		r.FullName = r.Owner + "/" + r.Name
	}
	if r.DefaultBranch == "" {
		r.DefaultBranch = "main"
	}
	s.addRepoLocked(r, nil)
}

// SeedFile writes a file directly onto a branch without recording a call.
func (s *SimStore) SeedFile(repo RepoRef, branch, path, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[repoKey(repo)]
	if !ok {
		return
	}
	if _, ok := r.heads[branch]; !ok {
		r.heads[branch] = s.newCommitLocked()
		r.files[branch] = make(map[string]simFile)
	}
	r.files[branch][path] = simFile{content: content, sha: blobSHA(content)}
	head := s.newCommitLocked()
	r.heads[branch] = head
	r.snapshot[head] = copyFiles(r.files[branch])
}

// File returns a file's content on a branch.
func (s *SimStore) File(repo RepoRef, branch, path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[repoKey(repo)]
	if !ok {
		return "", false
	}
	f, ok := r.files[branch][path]
	return f.content, ok
}

// Branches lists a repository's branches in sorted order.
func (s *SimStore) Branches(repo RepoRef) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[repoKey(repo)]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(r.heads))
	for b := range r.heads {
		out = append(out, b)
	}
	sort.Strings(out)
	return out
}

// Forks lists every fork of the upstream.
func (s *SimStore) Forks() []Repo {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Repo
	for _, r := range s.repos {
		if r.repo.Fork && parentMatches(r.repo.Parent, s.upstream) {
			out = append(out, r.repo)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out
}

// PullRequests returns opened pull requests in creation order.
func (s *SimStore) PullRequests() []PullRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PullRequest, 0, len(s.pulls))
	for _, p := range s.pulls {
		out = append(out, p.PullRequest)
	}
	return out
}

// Calls returns a copy of the call log.
func (s *SimStore) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsOf filters the call log by operation name.
func (s *SimStore) CallsOf(op string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (s *SimStore) recordLocked(op string, repo RepoRef, ref, path string) {
	s.seq++
	full := ""
	if repo.Owner != "" {
		full = repo.FullName()
	}
	s.calls = append(s.calls, Call{Seq: s.seq, Op: op, Repo: full, Ref: ref, Path: path, At: time.Now()})
}

func (s *SimStore) userLocked(cred Credential) (entity.User, error) {
	if cred.empty() {
		return entity.User{}, &AuthError{Status: 401, Message: "no access token"}
	}
	if u, ok := s.users[cred]; ok {
		return u, nil
	}
	u := entity.User{Login: DefaultSimLogin, ID: s.nextID}
	s.nextID++
	s.users[cred] = u
	return u, nil
}

func (s *SimStore) addRepoLocked(r Repo, from *simRepo) *simRepo {
	sr := &simRepo{
		repo:     r,
		heads:    make(map[string]string),
		files:    make(map[string]map[string]simFile),
		snapshot: make(map[string]map[string]simFile),
	}
	branch := r.DefaultBranch
	if from != nil {
		src := from.repo.DefaultBranch
		sr.heads[branch] = from.heads[src]
		sr.files[branch] = copyFiles(from.files[src])
		for sha, files := range from.snapshot {
			sr.snapshot[sha] = files
		}
	} else {
		head := s.newCommitLocked()
		sr.heads[branch] = head
		sr.files[branch] = make(map[string]simFile)
		sr.snapshot[head] = map[string]simFile{}
	}
	s.repos[repoKey(r.Ref())] = sr
	return sr
}

func (s *SimStore) forkLocked(owner, name string) Repo {
	if name == "" {
		name = s.upstream.Repo
	}
	key := repoKey(RepoRef{Owner: owner, Name: name})
	if existing, ok := s.repos[key]; ok {
		return existing.repo
	}
	up := s.repos[repoKey(s.upstream.Ref())]
	r := Repo{
		Owner:         owner,
		Name:          name,
		FullName:      owner + "/" + name,
		Fork:          true,
		Parent:        s.upstream.FullName(),
		DefaultBranch: s.upstream.DefaultBranch,
		HTMLURL:       "https://github.com/" + owner + "/" + name,
	}
	s.addRepoLocked(r, up)
	return r
}

func (s *SimStore) newCommitLocked() string {
	s.commits++
	sum := sha1.Sum([]byte(fmt.Sprintf("commit-%d", s.commits)))
	return hex.EncodeToString(sum[:])
}

func (s *SimStore) repoLocked(repo RepoRef) (*simRepo, error) {
	r, ok := s.repos[repoKey(repo)]
	if !ok {
		return nil, &NotFoundError{Resource: "repository", Message: fmt.Sprintf("repository %s not found", repo.FullName())}
	}
	return r, nil
}

func repoKey(r RepoRef) string {
	return strings.ToLower(r.Owner + "/" + r.Name)
}

func copyFiles(in map[string]simFile) map[string]simFile {
	out := make(map[string]simFile, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// blobSHA hashes content the way git names blobs.
func blobSHA(content string) string {
	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(content))
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}
