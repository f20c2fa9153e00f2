// Package contribution turns a company submission into a pull request (or a
// direct commit for the upstream owner) against the directory repository.
package contribution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"contactdir/internal/gateway/entity"
	"contactdir/internal/githost"
	"contactdir/internal/logging"
)

// Timing holds every wait the pipeline performs.
type Timing struct {
	// ForkPolls and ForkPollDelay bound the wait for a new fork to finish.
	ForkPolls     int
	ForkPollDelay time.Duration
	// VisibilityRetries and VisibilityDelay bound the extra wait for the
	// finished fork to show up in lookups.
	VisibilityRetries int
	VisibilityDelay   time.Duration
	// PhasePause is slept after each progress update so indicators stay visible.
	PhasePause time.Duration
}

func LiveTiming() Timing {
	return Timing{
		ForkPolls:         5,
		ForkPollDelay:     2 * time.Second,
		VisibilityRetries: 3,
		VisibilityDelay:   1500 * time.Millisecond,
	}
}

func SimulatedTiming() Timing {
	return Timing{
		ForkPolls:         5,
		VisibilityRetries: 3,
		PhasePause:        300 * time.Millisecond,
	}
}

const (
	forkNotReadyMessage = "Your fork may still be initializing. Please wait a minute and try again."
	reauthMessage       = "Your GitHub session is no longer valid. Please sign in again to re-authenticate."
)

var errForkNotReady = errors.New("fork not visible after creation")

// Pipeline runs contributions against one Transport.
type Pipeline struct {
	transport   githost.Transport
	injector    Injector
	timing      Timing
	logger      *zap.Logger
	now         func() time.Time
	detectOwner bool
}

type Option func(*Pipeline)

func WithInjector(i Injector) Option { return func(p *Pipeline) { p.injector = i } }
func WithTiming(t Timing) Option     { return func(p *Pipeline) { p.timing = t } }
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) { p.logger = logging.OrNop(l) }
}
func WithClock(now func() time.Time) Option { return func(p *Pipeline) { p.now = now } }

// WithOwnerDetection keeps owner detection on for simulated transports,
// which otherwise always take the fork path.
func WithOwnerDetection() Option { return func(p *Pipeline) { p.detectOwner = true } }

func NewPipeline(t githost.Transport, opts ...Option) *Pipeline {
	p := &Pipeline{
		transport: t,
		injector:  RegistryInjector{},
		timing:    LiveTiming(),
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	if t.Simulated() {
		p.timing = SimulatedTiming()
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("contribution")
	return p
}

// Emit receives every progress state, terminal one included.
type Emit func(State)

type run struct {
	cred    githost.Credential
	sub     Submission
	login   string
	owner   bool
	repo    githost.RepoRef
	base    string
	branch  string
	logger  *zap.Logger
	emit    Emit
	current State
}

// Run executes one submission and returns its terminal state. Only a
// ValidationError is returned as an error; remote failures end in Failed.
func (p *Pipeline) Run(ctx context.Context, cred githost.Credential, sub Submission, emit Emit) (State, error) {
	if err := sub.Check(); err != nil {
		return nil, err
	}
	runID, ok := RunIDFromContext(ctx)
	if !ok {
		runID = uuid.NewString()
	}
	r := &run{
		cred: cred,
		sub:  sub,
		emit: emit,
		logger: p.logger.With(
			zap.String("run_id", runID),
			zap.String("company", sub.Company.ID),
			zap.Bool("edit", sub.IsEdit),
		),
	}

	final, err := p.execute(ctx, r)
	if err != nil {
		final = p.failure(r, err)
	}
	p.publish(ctx, r, final)
	return final, nil
}

func (p *Pipeline) execute(ctx context.Context, r *run) (State, error) {
	t := p.transport
	up := t.Upstream()

	p.publish(ctx, r, Forking{})
	user, err := t.CurrentUser(ctx, r.cred)
	if err != nil {
		return nil, err
	}
	r.login = user.Login
	r.owner = entity.SameLogin(user.Login, up.Owner) && (!t.Simulated() || p.detectOwner)
	r.logger = r.logger.With(zap.String("login", r.login), zap.Bool("owner", r.owner))

	r.repo, r.base = up.Ref(), up.DefaultBranch
	if !r.owner {
		fork, err := p.ensureFork(ctx, r)
		if err != nil {
			return nil, err
		}
		r.repo = fork.Ref()
		if fork.DefaultBranch != "" {
			r.base = fork.DefaultBranch
		}
	}

	p.publish(ctx, r, CreatingBranch{})
	if err := p.prepareBranch(ctx, r); err != nil {
		return nil, err
	}

	p.publish(ctx, r, Committing{})
	if err := p.commit(ctx, r); err != nil {
		return nil, err
	}

	if r.owner {
		return SuccessOwner{Branch: r.branch}, nil
	}

	p.publish(ctx, r, CreatingPR{})
	content := GeneratePRContent(r.sub.Company.ID, r.sub.Company.Name, r.sub.IsEdit)
	pr, err := t.OpenPullRequest(ctx, r.cred, githost.PullRequestInput{
		HeadOwner:  r.repo.Owner,
		HeadBranch: r.branch,
		Title:      content.Title,
		Body:       content.Body,
	})
	if err != nil {
		return nil, fmt.Errorf("open pull request: %w", err)
	}
	r.logger.Info("pull request opened", zap.Int("number", pr.Number), zap.String("url", pr.URL))
	return Success{PRURL: pr.URL, PRNumber: pr.Number, Branch: r.branch}, nil
}

func (p *Pipeline) ensureFork(ctx context.Context, r *run) (*githost.Repo, error) {
	t := p.transport
	fork, err := t.GetFork(ctx, r.cred, r.login)
	if err != nil {
		return nil, fmt.Errorf("look up fork: %w", err)
	}
	if fork != nil {
		t.SyncFork(ctx, r.cred, fork.Ref())
		return fork, nil
	}

	created, err := t.CreateFork(ctx, r.cred, r.login)
	if err != nil {
		return nil, fmt.Errorf("create fork: %w", err)
	}
	r.logger.Info("fork requested", zap.String("repo", created.FullName))

	attempts := []struct {
		n     int
		delay time.Duration
	}{
		{p.timing.ForkPolls, p.timing.ForkPollDelay},
		{p.timing.VisibilityRetries, p.timing.VisibilityDelay},
	}
	for _, a := range attempts {
		for i := 0; i < a.n; i++ {
			if err := sleep(ctx, a.delay); err != nil {
				return nil, err
			}
			fork, err := t.GetFork(ctx, r.cred, r.login)
			if err != nil {
				return nil, fmt.Errorf("look up fork: %w", err)
			}
			if fork != nil {
				return fork, nil
			}
		}
	}
	return nil, errForkNotReady
}

func (p *Pipeline) prepareBranch(ctx context.Context, r *run) error {
	t := p.transport
	r.branch = GenerateBranchName(r.sub.Company.ID, r.sub.IsEdit, r.login, p.now())
	sha, err := t.BranchHeadSHA(ctx, r.cred, r.repo, r.base)
	if err != nil {
		return fmt.Errorf("read %s head: %w", r.base, err)
	}
	exists, err := t.BranchExists(ctx, r.cred, r.repo, r.branch)
	if err != nil {
		return fmt.Errorf("check branch %s: %w", r.branch, err)
	}
	if exists {
		r.logger.Warn("branch already exists, reusing it", zap.String("branch", r.branch))
		return nil
	}
	if err := t.CreateBranch(ctx, r.cred, r.repo, r.branch, sha); err != nil {
		return fmt.Errorf("create branch %s: %w", r.branch, err)
	}
	r.logger.Info("branch created", zap.String("branch", r.branch), zap.String("repo", r.repo.FullName()))
	return nil
}

func (p *Pipeline) commit(ctx context.Context, r *run) error {
	t := p.transport
	company := r.sub.Company
	companyPath := CompanyPath(company.ID)

	var (
		registry    string
		registrySHA string
		existing    *githost.File
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		registry, registrySHA, err = p.readRegistry(gctx, r)
		return err
	})
	if r.sub.IsEdit {
		g.Go(func() error {
			f, err := t.ReadFile(gctx, r.cred, r.repo, companyPath, r.branch)
			if err != nil {
				return fmt.Errorf("read %s: %w", companyPath, err)
			}
			existing = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	data, err := entity.CanonicalJSON(company)
	if err != nil {
		return err
	}
	key := company.LogoType
	if key == "" {
		key = company.ID
	}
	patched, err := p.injector.Inject(registry, key, r.sub.LogoSVG)
	if err != nil {
		return fmt.Errorf("update %s: %w", RegistryPath, err)
	}

	verb := "Add"
	if r.sub.IsEdit {
		verb = "Update"
	}
	companyWrite := githost.WriteRequest{
		Path:    companyPath,
		Content: string(data),
		Message: fmt.Sprintf("%s company data for %s", verb, company.Name),
		Branch:  r.branch,
	}
	if existing != nil {
		companyWrite.ExpectedSHA = existing.SHA
	}
	if _, err := t.WriteFile(ctx, r.cred, r.repo, companyWrite); err != nil {
		return fmt.Errorf("write %s: %w", companyPath, err)
	}
	if _, err := t.WriteFile(ctx, r.cred, r.repo, githost.WriteRequest{
		Path:        RegistryPath,
		Content:     patched,
		Message:     fmt.Sprintf("%s logo for %s", verb, company.Name),
		Branch:      r.branch,
		ExpectedSHA: registrySHA,
	}); err != nil {
		return fmt.Errorf("write %s: %w", RegistryPath, err)
	}
	r.logger.Info("files committed", zap.String("branch", r.branch))
	return nil
}

// readRegistry prefers the new branch, then the base branch. Simulated runs
// fall back to MockRegistry; live runs fail.
func (p *Pipeline) readRegistry(ctx context.Context, r *run) (string, string, error) {
	t := p.transport
	for _, ref := range []string{r.branch, r.base} {
		f, err := t.ReadFile(ctx, r.cred, r.repo, RegistryPath, ref)
		if err != nil {
			return "", "", fmt.Errorf("read %s@%s: %w", RegistryPath, ref, err)
		}
		if f != nil {
			return f.Content, f.SHA, nil
		}
	}
	if t.Simulated() {
		r.logger.Debug("registry missing, using mock registry")
		return MockRegistry, "", nil
	}
	return "", "", ErrRegistryMissing
}

func (p *Pipeline) publish(ctx context.Context, r *run, s State) {
	r.current = s
	if r.emit != nil {
		r.emit(s)
	}
	if !s.Terminal() {
		_ = sleep(ctx, p.timing.PhasePause)
	}
}

func (p *Pipeline) failure(r *run, err error) Failed {
	phase := PhaseIdle
	if r.current != nil {
		phase = r.current.Phase()
	}
	r.logger.Error("contribution failed",
		zap.String("phase", string(phase)),
		zap.String("code", string(githost.CodeOf(err))),
		zap.Error(err))
	return Failed{Message: FailureMessage(err), Auth: githost.IsAuth(err)}
}

// FailureMessage is the user-facing text for a pipeline error.
func FailureMessage(err error) string {
	var (
		rateErr    *githost.RateLimitError
		timeoutErr *githost.TimeoutError
	)
	switch {
	case githost.IsAuth(err):
		return reauthMessage
	case errors.Is(err, errForkNotReady):
		return forkNotReadyMessage
	case errors.As(err, &rateErr):
		if rateErr.RetryAfter > 0 {
			return fmt.Sprintf("GitHub rate limit reached. Please try again in %s.", rateErr.RetryAfter.Round(time.Second))
		}
		return "GitHub rate limit reached. Please try again later."
	case errors.As(err, &timeoutErr):
		return "GitHub did not respond in time. Please try again."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "The contribution was interrupted. Please try again."
	default:
		return "Contribution failed: " + err.Error()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
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
