// Package orchestrator drives each source asset through the migration
// state machine: PENDING, TRANSLATING, REVIEWING, VERIFYING, and the
// terminals DONE, FAILED, VERIFY_FAIL and NEED_PERMISSION. Every
// transition is committed to the state store before the next stage
// starts, so a crash or cancellation resumes at the last committed stage.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sqlshift/sqlshift/internal/corrector"
	"github.com/sqlshift/sqlshift/internal/retriever"
	"github.com/sqlshift/sqlshift/internal/store"
	"github.com/sqlshift/sqlshift/internal/translate"
	"github.com/sqlshift/sqlshift/internal/verify"
)

// Verifier executes a candidate against the target database.
type Verifier interface {
	Verify(ctx context.Context, sqlScript string) verify.Result
}

// Options configures one migration run.
type Options struct {
	Project    string
	Dialect    string
	TargetDir  string
	MaxRetries int
	// MaxRounds caps corrector rounds per asset within one run; 0 means
	// rounds are limited by MaxRetries alone.
	MaxRounds int
	Workers   int
	// ChangedOnly narrows the run to assets whose content hash differs
	// from their rendered output.
	ChangedOnly bool
}

// Summary reports what one run did.
type Summary struct {
	Skipped        int // resume rule: DONE with matching hash
	Frozen         int // retry ceiling reached before this run
	Done           int
	Failed         int
	VerifyFailed   int
	NeedPermission int
}

func (s *Summary) String() string {
	return fmt.Sprintf("done=%d skipped=%d frozen=%d failed=%d verify_fail=%d need_permission=%d",
		s.Done, s.Skipped, s.Frozen, s.Failed, s.VerifyFailed, s.NeedPermission)
}

// Orchestrator owns the state machine. The corrector is optional; a nil
// corrector ends the review loop on the first verification failure.
type Orchestrator struct {
	store      *store.Store
	translator translate.Translator
	retriever  retriever.Retriever
	verifier   Verifier
	corrector  corrector.Corrector
	opts       Options

	mu      sync.Mutex
	summary Summary
}

func New(st *store.Store, tr translate.Translator, rt retriever.Retriever,
	vf Verifier, co corrector.Corrector, opts Options) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	return &Orchestrator{
		store:      st,
		translator: tr,
		retriever:  rt,
		verifier:   vf,
		corrector:  co,
		opts:       opts,
	}
}

// Run processes all selected assets with bounded parallelism. Assets are
// independent; a stage failure on one asset becomes a persisted status,
// never an error from Run. Only store failures and cancellation abort
// the run.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	assets, err := o.store.ListSourceAssets(o.opts.Project, store.ListOptions{
		OnlySelected: true,
		ChangedOnly:  o.opts.ChangedOnly,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("list assets: %w", err)
	}
	if len(assets) == 0 {
		return Summary{}, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)
	for _, asset := range assets {
		asset := asset
		g.Go(func() error {
			return o.processAsset(ctx, asset)
		})
	}
	if err := g.Wait(); err != nil {
		return o.snapshot(), err
	}
	return o.snapshot(), nil
}

func (o *Orchestrator) snapshot() Summary {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.summary
}

func (o *Orchestrator) count(fn func(*Summary)) {
	o.mu.Lock()
	fn(&o.summary)
	o.mu.Unlock()
}

// processAsset walks one asset through its stage sequence. Stages of the
// same asset never overlap; cancellation is honored between stages only.
func (o *Orchestrator) processAsset(ctx context.Context, asset store.SourceAsset) error {
	prior, err := o.store.GetMigrationLog(o.opts.Project, asset.FilePath)
	if err != nil {
		return err
	}

	if prior != nil && prior.Status == store.StatusDone {
		out, err := o.store.GetRenderedOutput(o.opts.Project, asset.FilePath)
		if err != nil {
			return err
		}
		if out != nil && out.SourceHash == asset.ContentHash {
			o.count(func(s *Summary) { s.Skipped++ })
			return nil
		}
	}

	retry := 0
	if prior != nil {
		retry = prior.RetryCount
	}
	if retry >= o.opts.MaxRetries && isFailure(priorStatus(prior)) {
		// Frozen in its last failure state until an explicit reset.
		o.count(func(s *Summary) { s.Frozen++ })
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	targetPath := filepath.Join(o.opts.TargetDir, asset.FileName)
	if err := o.store.CommitStage(store.StageUpdate{
		Project:    o.opts.Project,
		FilePath:   asset.FilePath,
		Status:     store.StatusTranslating,
		RetryCount: retry,
		TargetPath: targetPath,
	}); err != nil {
		return err
	}

	candidate, diags, err := o.translator.Translate(asset.SQLText, o.opts.Dialect)
	if err != nil {
		// Unrecoverable: the asset is marked FAILED, the run goes on.
		if cErr := o.store.CommitStage(store.StageUpdate{
			Project:      o.opts.Project,
			FilePath:     asset.FilePath,
			Status:       store.StatusFailed,
			RetryCount:   retry,
			LastErrorMsg: err.Error(),
			TargetPath:   targetPath,
		}); cErr != nil {
			return cErr
		}
		o.logEvent("error", "translation failed", asset.FileName+": "+err.Error())
		o.count(func(s *Summary) { s.Failed++ })
		return nil
	}

	contextObjs, contextBlock, err := o.retriever.Retrieve(o.opts.Project, asset.SQLText)
	if err != nil {
		return err
	}
	detected := detectedSchemas(contextObjs)

	return o.verifyLoop(ctx, asset, verifyState{
		candidate:   candidate,
		diagnostics: diagStrings(diags),
		context:     contextBlock,
		detected:    detected,
		targetPath:  targetPath,
		retry:       retry,
	})
}

type verifyState struct {
	candidate   string
	diagnostics []string
	context     string
	detected    string
	targetPath  string
	retry       int
	rounds      int
	feedback    string
}

// verifyLoop runs the VERIFYING / REVIEWING cycle until a terminal state.
func (o *Orchestrator) verifyLoop(ctx context.Context, asset store.SourceAsset, st verifyState) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := o.store.CommitStage(store.StageUpdate{
			Project:         o.opts.Project,
			FilePath:        asset.FilePath,
			Status:          store.StatusVerifying,
			RetryCount:      st.retry,
			DetectedSchemas: st.detected,
			TargetPath:      st.targetPath,
		}); err != nil {
			return err
		}

		res := o.verifier.Verify(ctx, st.candidate)
		if err := ctx.Err(); err != nil {
			return err
		}

		switch {
		case res.Success && !res.NeedsPermission:
			return o.commitTerminal(asset, st, store.StatusDone, "", res, true)

		case res.Success && res.NeedsPermission:
			o.logEvent("warn", "statements blocked by safety policy", asset.FileName)
			return o.commitTerminal(asset, st, store.StatusNeedPermission,
				"statements skipped by safety policy; enable verification overrides to proceed", res, false)
		}

		// Verification failed. One retry is consumed whether or not a
		// correction round follows.
		st.feedback = res.Err
		st.retry++

		roundsRemain := st.retry < o.opts.MaxRetries && o.corrector != nil
		if o.opts.MaxRounds > 0 && st.rounds >= o.opts.MaxRounds {
			roundsRemain = false
		}
		if !roundsRemain {
			if st.retry > o.opts.MaxRetries {
				st.retry = o.opts.MaxRetries
			}
			return o.commitTerminal(asset, st, store.StatusVerifyFail, res.Err, res, false)
		}

		if err := o.store.CommitStage(store.StageUpdate{
			Project:         o.opts.Project,
			FilePath:        asset.FilePath,
			Status:          store.StatusReviewing,
			RetryCount:      st.retry,
			LastErrorMsg:    res.Err,
			DetectedSchemas: st.detected,
			TargetPath:      st.targetPath,
		}); err != nil {
			return err
		}

		corrected, err := o.correct(ctx, st)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			o.logEvent("error", "correction round failed", asset.FileName+": "+err.Error())
			return o.commitTerminal(asset, st, store.StatusVerifyFail,
				res.Err+" | corrector: "+err.Error(), res, false)
		}
		st.candidate = corrected
		st.rounds++
	}
}

// correct runs one corrector round. When the backend can also review, its
// critique is appended to the verifier feedback first.
func (o *Orchestrator) correct(ctx context.Context, st verifyState) (string, error) {
	feedback := st.feedback
	if rv, ok := o.corrector.(corrector.Reviewer); ok {
		if pass, critique, err := rv.Review(ctx, st.candidate); err == nil && !pass && critique != "" {
			feedback += "\nReviewer: " + critique
		}
	}
	return o.corrector.Correct(ctx, corrector.Request{
		SQL:         st.candidate,
		Context:     st.context,
		Diagnostics: st.diagnostics,
		Feedback:    feedback,
	})
}

// commitTerminal writes the terminal log row and the rendered output in
// one transaction, then updates the run summary.
func (o *Orchestrator) commitTerminal(asset store.SourceAsset, st verifyState,
	status, errMsg string, res verify.Result, verified bool) error {

	err := o.store.CommitStage(store.StageUpdate{
		Project:            o.opts.Project,
		FilePath:           asset.FilePath,
		Status:             status,
		RetryCount:         st.retry,
		LastErrorMsg:       errMsg,
		DetectedSchemas:    st.detected,
		TargetPath:         st.targetPath,
		SkippedStatements:  res.SkippedStatements,
		ExecutedStatements: res.ExecutedStatements,
		Output: &store.RenderedOutput{
			Project:    o.opts.Project,
			AssetID:    asset.ID,
			FilePath:   asset.FilePath,
			SQLText:    st.candidate,
			SourceHash: asset.ContentHash,
			Status:     status,
			Verified:   verified,
			LastError:  errMsg,
		},
	})
	if err != nil {
		return err
	}

	switch status {
	case store.StatusDone:
		log.Printf("orchestrator: %s done (executed %d statements)", asset.FileName, res.ExecutedStatements)
		o.count(func(s *Summary) { s.Done++ })
	case store.StatusVerifyFail:
		o.count(func(s *Summary) { s.VerifyFailed++ })
	case store.StatusNeedPermission:
		o.count(func(s *Summary) { s.NeedPermission++ })
	case store.StatusFailed:
		o.count(func(s *Summary) { s.Failed++ })
	}
	return nil
}

func (o *Orchestrator) logEvent(level, event, detail string) {
	if err := o.store.AppendExecutionLog(o.opts.Project, level, event, detail); err != nil {
		log.Printf("orchestrator: record event %q: %v", event, err)
	}
}

func priorStatus(prior *store.MigrationLog) string {
	if prior == nil {
		return store.StatusPending
	}
	return prior.Status
}

func isFailure(status string) bool {
	return status == store.StatusFailed || status == store.StatusVerifyFail
}

func detectedSchemas(objects []store.SchemaObject) string {
	seen := make(map[string]bool)
	for _, obj := range objects {
		seen[obj.SchemaName] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func diagStrings(diags []translate.Diagnostic) []string {
	out := make([]string, 0, len(diags))
	for _, d := range diags {
		out = append(out, d.String())
	}
	return out
}
