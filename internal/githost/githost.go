// Package githost is the remote repository client used by the contribution
// pipeline. Every primitive is declared on Transport and has two
// implementations: LiveTransport talks to the GitHub REST API, and
// SimulatedTransport mutates an in-process SimStore. Callers pick one at
// construction time and never branch on mode afterwards.
package githost

import (
	"context"
	"strings"

	"contactdir/internal/gateway/entity"
)

// Credential is an opaque bearer token issued by the auth collaborator.
type Credential string

func (c Credential) String() string { return "[redacted]" }

func (c Credential) empty() bool { return strings.TrimSpace(string(c)) == "" }

// Upstream identifies the canonical repository contributions target.
type Upstream struct {
	Owner         string
	Repo          string
	DefaultBranch string
}

func (u Upstream) FullName() string { return u.Owner + "/" + u.Repo }

// Ref returns the upstream repository as a RepoRef.
func (u Upstream) Ref() RepoRef { return RepoRef{Owner: u.Owner, Name: u.Repo} }

// RepoRef names a repository by owner and name.
type RepoRef struct {
	Owner string
	Name  string
}

func (r RepoRef) FullName() string { return r.Owner + "/" + r.Name }

// Repo is the subset of repository metadata the pipeline uses.
type Repo struct {
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	FullName      string `json:"fullName"`
	Fork          bool   `json:"fork"`
	Parent        string `json:"parent,omitempty"`
	DefaultBranch string `json:"defaultBranch,omitempty"`
	HTMLURL       string `json:"htmlUrl,omitempty"`
}

func (r Repo) Ref() RepoRef { return RepoRef{Owner: r.Owner, Name: r.Name} }

// File is a file's decoded content and its blob SHA on some ref.
type File struct {
	Content string
	SHA     string
}

// WriteRequest creates or updates one file on one branch. ExpectedSHA must be
// the current blob SHA when the file exists and empty when it does not.
type WriteRequest struct {
	Path        string
	Content     string
	Message     string
	Branch      string
	ExpectedSHA string
}

type WriteResult struct {
	ContentSHA string
	CommitSHA  string
}

// PullRequestInput opens a PR from HeadOwner:HeadBranch into the upstream default branch.
type PullRequestInput struct {
	HeadOwner  string
	HeadBranch string
	Title      string
	Body       string
}

type PullRequest struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
	Title  string `json:"title"`
}

// Transport is the capability set the pipeline needs from a code host.
type Transport interface {
	// Upstream returns the canonical repository this transport targets.
	Upstream() Upstream
	// Simulated is true for transports that never touch the network.
	Simulated() bool

	CurrentUser(ctx context.Context, cred Credential) (entity.User, error)
	// GetFork returns the user's fork of the upstream, or nil when none exists.
	GetFork(ctx context.Context, cred Credential, username string) (*Repo, error)
	CreateFork(ctx context.Context, cred Credential, onBehalfOf string) (Repo, error)
	// SyncFork is best effort and never fails.
	SyncFork(ctx context.Context, cred Credential, fork RepoRef)
	BranchHeadSHA(ctx context.Context, cred Credential, repo RepoRef, branch string) (string, error)
	CreateBranch(ctx context.Context, cred Credential, repo RepoRef, name, fromSHA string) error
	BranchExists(ctx context.Context, cred Credential, repo RepoRef, name string) (bool, error)
	// ReadFile returns nil when path does not exist on ref.
	ReadFile(ctx context.Context, cred Credential, repo RepoRef, path, ref string) (*File, error)
	WriteFile(ctx context.Context, cred Credential, repo RepoRef, req WriteRequest) (WriteResult, error)
	OpenPullRequest(ctx context.Context, cred Credential, in PullRequestInput) (PullRequest, error)
}

func parentMatches(parent string, up Upstream) bool {
	return strings.EqualFold(strings.TrimSpace(parent), up.FullName())
}
