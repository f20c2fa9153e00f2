package githost

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"contactdir/internal/gateway/entity"
)

var simUpstream = Upstream{Owner: "contactdir", Repo: "directory", DefaultBranch: "main"}

func newSim(t *testing.T) (*SimStore, *SimulatedTransport) {
	t.Helper()
	store := NewSimStore(simUpstream)
	return store, NewSimulated(store, SimulatedConfig{})
}

func TestSim_CurrentUser(t *testing.T) {
	store, sim := newSim(t)
	ctx := context.Background()

	_, err := sim.CurrentUser(ctx, "")
	assert.True(t, IsAuth(err))

	u, err := sim.CurrentUser(ctx, "anything")
	require.NoError(t, err)
	assert.Equal(t, DefaultSimLogin, u.Login)

	store.SeedUser("mona-token", entity.User{Login: "mona", ID: 9})
	u, err = sim.CurrentUser(ctx, "mona-token")
	require.NoError(t, err)
	assert.Equal(t, "mona", u.Login)
}

func TestSim_GetForkFallsBackToDifferentName(t *testing.T) {
	store, sim := newSim(t)
	store.SeedFork("octo", "directory-renamed")

	fork, err := sim.GetFork(context.Background(), "tok", "octo")
	require.NoError(t, err)
	require.NotNil(t, fork)
	assert.Equal(t, "octo/directory-renamed", fork.FullName)
}

func TestSim_GetForkIgnoresForksOfOtherRepos(t *testing.T) {
	store, sim := newSim(t)
	store.SeedRepo(Repo{Owner: "octo", Name: "directory", Fork: true, Parent: "someone/else"})

	fork, err := sim.GetFork(context.Background(), "tok", "octo")
	require.NoError(t, err)
	assert.Nil(t, fork)
}

func TestSim_CreateForkCopiesDefaultBranch(t *testing.T) {
	store, sim := newSim(t)
	ctx := context.Background()
	store.SeedFile(simUpstream.Ref(), "main", "README.md", "hello")

	fork, err := sim.CreateFork(ctx, "tok", "octo")
	require.NoError(t, err)
	assert.True(t, fork.Fork)
	assert.Equal(t, "contactdir/directory", fork.Parent)

	f, err := sim.ReadFile(ctx, "tok", fork.Ref(), "README.md", "main")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "hello", f.Content)
	assert.Len(t, store.Forks(), 1)
}

func TestSim_ForkVisibilityLag(t *testing.T) {
	store, sim := newSim(t)
	ctx := context.Background()
	store.SetForkVisibilityLag(2)

	_, err := sim.CreateFork(ctx, "tok", "octo")
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		fork, err := sim.GetFork(ctx, "tok", "octo")
		require.NoError(t, err)
		assert.Nil(t, fork)
	}
	fork, err := sim.GetFork(ctx, "tok", "octo")
	require.NoError(t, err)
	assert.NotNil(t, fork)
}

func TestSim_Branches(t *testing.T) {
	_, sim := newSim(t)
	ctx := context.Background()
	repo := simUpstream.Ref()

	head, err := sim.BranchHeadSHA(ctx, "tok", repo, "main")
	require.NoError(t, err)
	assert.Len(t, head, 40)

	_, err = sim.BranchHeadSHA(ctx, "tok", repo, "missing")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Contains(t, nf.Error(), `"missing"`)

	require.NoError(t, sim.CreateBranch(ctx, "tok", repo, "feature", head))
	exists, err := sim.BranchExists(ctx, "tok", repo, "feature")
	require.NoError(t, err)
	assert.True(t, exists)

	err = sim.CreateBranch(ctx, "tok", repo, "feature", head)
	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestSim_WriteFileConflicts(t *testing.T) {
	_, sim := newSim(t)
	ctx := context.Background()
	repo := simUpstream.Ref()
	path := "data/companies/acme.json"
	var conflict *ConflictError

	_, err := sim.WriteFile(ctx, "tok", repo, WriteRequest{Path: path, Content: "v0", Branch: "main", ExpectedSHA: "bogus"})
	assert.ErrorAs(t, err, &conflict, "creating with a sha")

	created, err := sim.WriteFile(ctx, "tok", repo, WriteRequest{Path: path, Content: "v1", Branch: "main"})
	require.NoError(t, err)
	assert.Equal(t, blobSHA("v1"), created.ContentSHA)

	_, err = sim.WriteFile(ctx, "tok", repo, WriteRequest{Path: path, Content: "v2", Branch: "main"})
	assert.ErrorAs(t, err, &conflict, "updating without a sha")

	_, err = sim.WriteFile(ctx, "tok", repo, WriteRequest{Path: path, Content: "v2", Branch: "main", ExpectedSHA: blobSHA("v0")})
	assert.ErrorAs(t, err, &conflict, "updating with a stale sha")

	updated, err := sim.WriteFile(ctx, "tok", repo, WriteRequest{Path: path, Content: "v2", Branch: "main", ExpectedSHA: created.ContentSHA})
	require.NoError(t, err)
	assert.NotEqual(t, created.CommitSHA, updated.CommitSHA)

	head, err := sim.BranchHeadSHA(ctx, "tok", repo, "main")
	require.NoError(t, err)
	assert.Equal(t, updated.CommitSHA, head)
}

func TestSim_ReadFileMissing(t *testing.T) {
	_, sim := newSim(t)
	f, err := sim.ReadFile(context.Background(), "tok", simUpstream.Ref(), "nope.txt", "main")
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestSim_OpenPullRequest(t *testing.T) {
	store, sim := newSim(t)
	ctx := context.Background()
	fork := store.SeedFork("octo", "")
	head, err := sim.BranchHeadSHA(ctx, "tok", fork.Ref(), "main")
	require.NoError(t, err)
	require.NoError(t, sim.CreateBranch(ctx, "tok", fork.Ref(), "b1", head))
	require.NoError(t, sim.CreateBranch(ctx, "tok", fork.Ref(), "b2", head))

	pr1, err := sim.OpenPullRequest(ctx, "tok", PullRequestInput{HeadOwner: "octo", HeadBranch: "b1", Title: "Add: A"})
	require.NoError(t, err)
	assert.Equal(t, 1, pr1.Number)
	assert.Equal(t, "https://github.com/contactdir/directory/pull/1", pr1.URL)

	pr2, err := sim.OpenPullRequest(ctx, "tok", PullRequestInput{HeadOwner: "octo", HeadBranch: "b2", Title: "Add: B"})
	require.NoError(t, err)
	assert.Equal(t, 2, pr2.Number)

	_, err = sim.OpenPullRequest(ctx, "tok", PullRequestInput{HeadOwner: "octo", HeadBranch: "b1"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 422, apiErr.Status)

	_, err = sim.OpenPullRequest(ctx, "tok", PullRequestInput{HeadOwner: "octo", HeadBranch: "missing"})
	assert.Error(t, err)

	_, err = sim.OpenPullRequest(ctx, "tok", PullRequestInput{HeadOwner: "stranger", HeadBranch: "b1"})
	assert.Error(t, err)
}

func TestSim_ResetClearsState(t *testing.T) {
	store, sim := newSim(t)
	ctx := context.Background()
	store.SeedFork("octo", "")
	store.SetForkVisibilityLag(3)
	_, _ = sim.CurrentUser(ctx, "tok")
	require.NotEmpty(t, store.Calls())

	store.Reset()

	assert.Empty(t, store.Calls())
	assert.Empty(t, store.Forks())
	assert.Empty(t, store.PullRequests())
	assert.Equal(t, []string{"main"}, store.Branches(simUpstream.Ref()))

	fork, err := sim.CreateFork(ctx, "tok", "octo")
	require.NoError(t, err)
	got, err := sim.GetFork(ctx, "tok", "octo")
	require.NoError(t, err)
	require.NotNil(t, got, "visibility lag must be cleared by Reset")
	assert.Equal(t, fork.FullName, got.FullName)
	assert.Equal(t, 1, store.Calls()[0].Seq)
}

func TestSim_CallLogOrder(t *testing.T) {
	store, sim := newSim(t)
	ctx := context.Background()
	_, _ = sim.CurrentUser(ctx, "tok")
	_, _ = sim.GetFork(ctx, "tok", "octo")
	sim.SyncFork(ctx, "tok", RepoRef{Owner: "octo", Name: "directory"})

	calls := store.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, []string{"current_user", "get_fork", "sync_fork"}, []string{calls[0].Op, calls[1].Op, calls[2].Op})
	assert.Len(t, store.CallsOf("get_fork"), 1)
}

func TestSim_DelayHonoursCancellation(t *testing.T) {
	store := NewSimStore(simUpstream)
	sim := NewSimulated(store, SimulatedConfig{MinDelay: time.Minute, MaxDelay: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	started := time.Now()
	_, err := sim.CurrentUser(ctx, "tok")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Less(t, time.Since(started), time.Second)
	assert.Empty(t, store.Calls())
}

func TestSim_GetForkWithoutParentIsAcceptedAndLogged(t *testing.T) {
	store := NewSimStore(simUpstream)
	core, logs := observer.New(zapcore.InfoLevel)
	sim := NewSimulated(store, SimulatedConfig{Logger: zap.New(core)})
	store.SeedRepo(Repo{Owner: "octo", Name: "directory", Fork: true})

	fork, err := sim.GetFork(context.Background(), "tok", "octo")
	require.NoError(t, err)
	require.NotNil(t, fork)
	assert.Equal(t, "octo/directory", fork.FullName)

	warned := logs.FilterMessage("fork has no parent metadata, accepting it").All()
	require.Len(t, warned, 1)
	assert.Equal(t, zapcore.WarnLevel, warned[0].Level)
	assert.Equal(t, "octo/directory", warned[0].ContextMap()["repo"])
}
