package contribution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contactdir/internal/gateway/entity"
	"contactdir/internal/githost"
)

var testUpstream = githost.Upstream{Owner: "contactdir", Repo: "directory", DefaultBranch: "main"}

const testToken githost.Credential = "token-1"

func newSimPipeline(t *testing.T, opts ...Option) (*githost.SimStore, *Pipeline) {
	t.Helper()
	store := githost.NewSimStore(testUpstream)
	transport := githost.NewSimulated(store, githost.SimulatedConfig{})
	base := []Option{
		WithTiming(Timing{ForkPolls: 5, VisibilityRetries: 3}),
		WithClock(func() time.Time { return time.UnixMilli(1700000000000) }),
	}
	return store, NewPipeline(transport, append(base, opts...)...)
}

func acmeSubmission() Submission {
	return Submission{
		Company: entity.Company{
			ID:          "acme",
			Name:        "Acme",
			Description: "Anvils and rockets",
			LogoType:    "acme",
			Categories: []entity.Category{{
				Name:     "Support",
				Contacts: []entity.Contact{{Product: "Acme CLI", Handles: []string{"@acmecli"}}},
			}},
		},
		LogoSVG: `<svg viewBox="0 0 10 10"><path fill="#f00" d="M0 0h10v10H0z"/></svg>`,
	}
}

func collect(phases *[]Phase) Emit {
	return func(s State) { *phases = append(*phases, s.Phase()) }
}

func TestPipeline_EndToEndSimulatedAdd(t *testing.T) {
	store, p := newSimPipeline(t)
	var phases []Phase

	final, err := p.Run(context.Background(), testToken, acmeSubmission(), collect(&phases))
	require.NoError(t, err)

	success, ok := final.(Success)
	require.True(t, ok, "final state %#v", final)
	assert.NotEmpty(t, success.PRURL)
	assert.GreaterOrEqual(t, success.PRNumber, 1)
	assert.Equal(t, "api-add-acme-test-contributor-1700000000000", success.Branch)
	assert.Equal(t, []Phase{PhaseForking, PhaseCreatingBranch, PhaseCommitting, PhaseCreatingPR, PhaseSuccess}, phases)

	forks := store.Forks()
	require.Len(t, forks, 1)
	fork := forks[0].Ref()
	assert.Contains(t, store.Branches(fork), success.Branch)

	data, ok := store.File(fork, success.Branch, "data/companies/acme.json")
	require.True(t, ok)
	want, err := entity.CanonicalJSON(acmeSubmission().Company)
	require.NoError(t, err)
	assert.Equal(t, string(want), data)

	registry, ok := store.File(fork, success.Branch, RegistryPath)
	require.True(t, ok)
	assert.Equal(t, []string{"placeholder", "acme"}, RegistryKeys(registry))

	prs := store.PullRequests()
	require.Len(t, prs, 1)
	assert.Contains(t, prs[0].Title, "Add: Acme")
	assert.Len(t, store.CallsOf("create_fork"), 1)
	assert.Len(t, store.CallsOf("create_branch"), 1)
	assert.Len(t, store.CallsOf("write_file"), 2)
}

func TestPipeline_WritesCompanyFileBeforeRegistry(t *testing.T) {
	store, p := newSimPipeline(t)
	_, err := p.Run(context.Background(), testToken, acmeSubmission(), nil)
	require.NoError(t, err)

	writes := store.CallsOf("write_file")
	require.Len(t, writes, 2)
	assert.Equal(t, "data/companies/acme.json", writes[0].Path)
	assert.Equal(t, RegistryPath, writes[1].Path)
	assert.Less(t, writes[0].Seq, writes[1].Seq)
	assert.False(t, writes[1].At.Before(writes[0].At))
}

func TestPipeline_OwnerCommitsWithoutPullRequest(t *testing.T) {
	store, p := newSimPipeline(t, WithOwnerDetection())
	store.SeedUser("owner-token", entity.User{Login: "ContactDir", ID: 1})
	var phases []Phase

	final, err := p.Run(context.Background(), "owner-token", acmeSubmission(), collect(&phases))
	require.NoError(t, err)

	owner, ok := final.(SuccessOwner)
	require.True(t, ok, "final state %#v", final)
	assert.Equal(t, "api-add-acme-ContactDir-1700000000000", owner.Branch)
	assert.NotContains(t, phases, PhaseCreatingPR)
	assert.Empty(t, store.CallsOf("open_pull_request"))
	assert.Empty(t, store.CallsOf("create_fork"))
	assert.Empty(t, store.Forks())

	_, ok = store.File(testUpstream.Ref(), owner.Branch, "data/companies/acme.json")
	assert.True(t, ok)
}

func TestPipeline_UsesRenamedFork(t *testing.T) {
	store, p := newSimPipeline(t)
	store.SeedRepo(githost.Repo{Owner: "test-contributor", Name: "directory"})
	renamed := store.SeedFork("test-contributor", "directory-1")

	final, err := p.Run(context.Background(), testToken, acmeSubmission(), nil)
	require.NoError(t, err)
	success, ok := final.(Success)
	require.True(t, ok, "final state %#v", final)

	assert.Empty(t, store.CallsOf("create_fork"))
	assert.Len(t, store.CallsOf("sync_fork"), 1)
	assert.Contains(t, store.Branches(renamed.Ref()), success.Branch)
}

func TestPipeline_WaitsForForkVisibility(t *testing.T) {
	store, p := newSimPipeline(t)
	store.SetForkVisibilityLag(7)

	final, err := p.Run(context.Background(), testToken, acmeSubmission(), nil)
	require.NoError(t, err)
	_, ok := final.(Success)
	assert.True(t, ok, "final state %#v", final)
	// one lookup before creation plus eight after it
	assert.Len(t, store.CallsOf("get_fork"), 9)
}

func TestPipeline_ForkNeverVisible(t *testing.T) {
	store, p := newSimPipeline(t)
	store.SetForkVisibilityLag(8)

	final, err := p.Run(context.Background(), testToken, acmeSubmission(), nil)
	require.NoError(t, err)
	failed, ok := final.(Failed)
	require.True(t, ok, "final state %#v", final)
	assert.Equal(t, "Your fork may still be initializing. Please wait a minute and try again.", failed.Message)
	assert.False(t, failed.Auth)
	assert.Empty(t, store.CallsOf("create_branch"))
}

func TestPipeline_EditUpdatesExistingFiles(t *testing.T) {
	store, p := newSimPipeline(t)
	sub := acmeSubmission()
	original, err := entity.CanonicalJSON(sub.Company)
	require.NoError(t, err)
	store.SeedFile(testUpstream.Ref(), "main", "data/companies/acme.json", string(original))
	seeded, err := InjectLogo(MockRegistry, "acme", `<svg><rect/></svg>`)
	require.NoError(t, err)
	store.SeedFile(testUpstream.Ref(), "main", RegistryPath, seeded)

	sub.IsEdit = true
	sub.Company.Description = "Anvils, rockets and giant magnets"
	final, err := p.Run(context.Background(), testToken, sub, nil)
	require.NoError(t, err)
	success, ok := final.(Success)
	require.True(t, ok, "final state %#v", final)
	assert.Equal(t, "api-edit-acme-test-contributor-1700000000000", success.Branch)

	fork := store.Forks()[0].Ref()
	data, _ := store.File(fork, success.Branch, "data/companies/acme.json")
	assert.Contains(t, data, "giant magnets")
	registry, _ := store.File(fork, success.Branch, RegistryPath)
	assert.Equal(t, []string{"placeholder", "acme"}, RegistryKeys(registry))
	assert.NotContains(t, registry, "<rect/>")
	assert.Equal(t, "Edit: Acme", store.PullRequests()[0].Title)
}

func TestPipeline_RejectsIncompleteSubmission(t *testing.T) {
	store, p := newSimPipeline(t)
	sub := acmeSubmission()
	sub.Company.Name = ""
	sub.LogoSVG = ""
	called := false

	final, err := p.Run(context.Background(), testToken, sub, func(State) { called = true })
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Problems, 2)
	assert.Nil(t, final)
	assert.False(t, called)
	assert.Empty(t, store.Calls())
}

func TestPipeline_AuthFailure(t *testing.T) {
	_, p := newSimPipeline(t)
	final, err := p.Run(context.Background(), "", acmeSubmission(), nil)
	require.NoError(t, err)
	failed, ok := final.(Failed)
	require.True(t, ok)
	assert.True(t, failed.Auth)
	assert.Contains(t, failed.Message, "re-authenticate")
}

func TestPipeline_MalformedRegistryIsFatal(t *testing.T) {
	store, p := newSimPipeline(t)
	store.SeedFile(testUpstream.Ref(), "main", RegistryPath, "export const companyLogos = {\n")

	final, err := p.Run(context.Background(), testToken, acmeSubmission(), nil)
	require.NoError(t, err)
	failed, ok := final.(Failed)
	require.True(t, ok)
	assert.Contains(t, failed.Message, ErrRegistryMarkerNotFound.Error())
	assert.Empty(t, store.CallsOf("write_file"))
}

// liveShaped reports itself as a live transport so the registry fallback is disabled.
type liveShaped struct{ *githost.SimulatedTransport }

func (liveShaped) Simulated() bool { return false }

func TestPipeline_LiveRequiresRegistry(t *testing.T) {
	store := githost.NewSimStore(testUpstream)
	p := NewPipeline(liveShaped{githost.NewSimulated(store, githost.SimulatedConfig{})},
		WithTiming(Timing{ForkPolls: 1}))

	final, err := p.Run(context.Background(), testToken, acmeSubmission(), nil)
	require.NoError(t, err)
	failed, ok := final.(Failed)
	require.True(t, ok)
	assert.Contains(t, failed.Message, ErrRegistryMissing.Error())
	assert.Empty(t, store.CallsOf("write_file"))
}

func TestPipeline_RunIDFromContext(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-42")
	id, ok := RunIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "run-42", id)

	_, ok = RunIDFromContext(context.Background())
	assert.False(t, ok)
}
