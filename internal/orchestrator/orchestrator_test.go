package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sqlshift/sqlshift/internal/corrector"
	"github.com/sqlshift/sqlshift/internal/retriever"
	"github.com/sqlshift/sqlshift/internal/store"
	"github.com/sqlshift/sqlshift/internal/translate"
	"github.com/sqlshift/sqlshift/internal/verify"
)

type fakeTranslator struct {
	fail bool
}

func (f *fakeTranslator) Translate(sql, dialect string) (string, []translate.Diagnostic, error) {
	if f.fail {
		return "", nil, errors.New("unparseable source script")
	}
	return strings.ReplaceAll(sql, "NVL(", "COALESCE("), nil, nil
}

// fakeVerifier replays scripted results and records every candidate it saw.
type fakeVerifier struct {
	mu      sync.Mutex
	results []verify.Result
	calls   []string
}

func (f *fakeVerifier) Verify(_ context.Context, sqlScript string) verify.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sqlScript)
	if len(f.results) == 0 {
		return verify.Result{Success: true, ExecutedStatements: 1}
	}
	res := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return res
}

func (f *fakeVerifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeCorrector struct {
	mu     sync.Mutex
	output string
	rounds int
}

func (f *fakeCorrector) Correct(_ context.Context, req corrector.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rounds++
	if f.output != "" {
		return f.output, nil
	}
	return req.SQL, nil
}

type fixture struct {
	store    *store.Store
	verifier *fakeVerifier
}

func newFixture(t *testing.T, sqlText string) *fixture {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("store.New() error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.SyncSourceAsset("proj", "/in/a.sql", sqlText, "", true, false); err != nil {
		t.Fatalf("SyncSourceAsset() error: %v", err)
	}
	return &fixture{store: s, verifier: &fakeVerifier{}}
}

func (f *fixture) orchestrator(t *testing.T, co corrector.Corrector, maxRetries int) *Orchestrator {
	t.Helper()
	return New(f.store, &fakeTranslator{}, retriever.New(f.store), f.verifier, co, Options{
		Project:    "proj",
		Dialect:    "oracle",
		TargetDir:  t.TempDir(),
		MaxRetries: maxRetries,
		Workers:    2,
	})
}

func TestRun_TranslateVerifyDone(t *testing.T) {
	f := newFixture(t, "SELECT NVL(bonus,0) FROM hr.compensation;")
	o := f.orchestrator(t, nil, 3)

	sum, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if sum.Done != 1 {
		t.Fatalf("summary = %s, want 1 done", sum.String())
	}

	log, err := f.store.GetMigrationLog("proj", "/in/a.sql")
	if err != nil {
		t.Fatal(err)
	}
	if log.Status != store.StatusDone || log.RetryCount != 0 {
		t.Errorf("log = %+v, want DONE with retry 0", log)
	}

	out, err := f.store.GetRenderedOutput("proj", "/in/a.sql")
	if err != nil {
		t.Fatal(err)
	}
	if !out.Verified {
		t.Error("Verified = false, want true")
	}
	if !strings.Contains(out.SQLText, "COALESCE(bonus,0)") {
		t.Errorf("output SQL = %q, want translated candidate", out.SQLText)
	}
	if out.SourceHash != store.HashSQL("SELECT NVL(bonus,0) FROM hr.compensation;") {
		t.Errorf("SourceHash = %q, want content hash of the source", out.SourceHash)
	}
}

func TestRun_ResumeSkipsDoneAssets(t *testing.T) {
	f := newFixture(t, "SELECT NVL(bonus,0) FROM hr.compensation;")
	o := f.orchestrator(t, nil, 3)

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	firstCalls := f.verifier.callCount()

	sum, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Skipped != 1 || sum.Done != 0 {
		t.Errorf("second run summary = %s, want 1 skipped", sum.String())
	}
	if f.verifier.callCount() != firstCalls {
		t.Error("verifier re-invoked for a DONE asset with unchanged hash")
	}
}

func TestRun_HashChangeReprocesses(t *testing.T) {
	f := newFixture(t, "SELECT NVL(bonus,0) FROM hr.compensation;")
	o := f.orchestrator(t, nil, 3)

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Edit the source: the pinned hash no longer matches.
	if err := f.store.SyncSourceAsset("proj", "/in/a.sql",
		"SELECT NVL(salary,0) FROM hr.compensation;", "", true, false); err != nil {
		t.Fatal(err)
	}

	sum, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Done != 1 || sum.Skipped != 0 {
		t.Errorf("summary after edit = %s, want reprocessed to done", sum.String())
	}
	out, _ := f.store.GetRenderedOutput("proj", "/in/a.sql")
	if !strings.Contains(out.SQLText, "COALESCE(salary,0)") {
		t.Errorf("output not rebuilt from edited source: %q", out.SQLText)
	}
}

func TestRun_NeedPermission(t *testing.T) {
	f := newFixture(t, "DROP TABLE hr.old_comp;")
	f.verifier.results = []verify.Result{{
		Success:           true,
		NeedsPermission:   true,
		SkippedStatements: []string{"DROP TABLE hr.old_comp"},
	}}
	o := f.orchestrator(t, nil, 3)

	sum, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.NeedPermission != 1 {
		t.Fatalf("summary = %s, want 1 need_permission", sum.String())
	}

	log, _ := f.store.GetMigrationLog("proj", "/in/a.sql")
	if log.Status != store.StatusNeedPermission {
		t.Errorf("status = %q, want NEED_PERMISSION", log.Status)
	}
	if !strings.Contains(log.SkippedStatements, "DROP TABLE hr.old_comp") {
		t.Errorf("SkippedStatements = %q, want the blocked drop", log.SkippedStatements)
	}
	out, _ := f.store.GetRenderedOutput("proj", "/in/a.sql")
	if out.Verified {
		t.Error("Verified = true for a parked asset, want false")
	}
}

func TestRun_CorrectorLoopRecovers(t *testing.T) {
	f := newFixture(t, "SELECT NVL(bonus,0) FROM hr.compensation;")
	f.verifier.results = []verify.Result{
		{Err: "syntax error at or near FROM"},
		{Success: true, ExecutedStatements: 1},
	}
	co := &fakeCorrector{output: "SELECT COALESCE(bonus,0) FROM hr.compensation;"}
	o := f.orchestrator(t, co, 3)

	sum, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Done != 1 {
		t.Fatalf("summary = %s, want done after one correction round", sum.String())
	}
	if co.rounds != 1 {
		t.Errorf("corrector rounds = %d, want 1", co.rounds)
	}

	log, _ := f.store.GetMigrationLog("proj", "/in/a.sql")
	if log.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1 consumed retry", log.RetryCount)
	}
	// The verifier's second call must see the corrected candidate.
	if got := f.verifier.calls[1]; got != co.output {
		t.Errorf("second verified candidate = %q, want corrected SQL", got)
	}
}

func TestRun_RetryCeilingFreezes(t *testing.T) {
	f := newFixture(t, "SELECT NVL(bonus,0) FROM hr.compensation;")
	f.verifier.results = []verify.Result{{Err: "relation does not exist"}}
	o := f.orchestrator(t, &fakeCorrector{}, 2)

	sum, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.VerifyFailed != 1 {
		t.Fatalf("summary = %s, want 1 verify_fail", sum.String())
	}
	if f.verifier.callCount() != 2 {
		t.Errorf("verification attempts = %d, want exactly max_retries", f.verifier.callCount())
	}

	log, _ := f.store.GetMigrationLog("proj", "/in/a.sql")
	if log.Status != store.StatusVerifyFail || log.RetryCount != 2 {
		t.Fatalf("log = %+v, want VERIFY_FAIL frozen at retry 2", log)
	}
	if log.LastErrorMsg == "" {
		t.Error("LastErrorMsg empty, want the verification error surfaced")
	}

	// A second run must not touch the frozen asset.
	sum, err = o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Frozen != 1 || f.verifier.callCount() != 2 {
		t.Errorf("second run summary = %s with %d verifier calls, want frozen with no new calls",
			sum.String(), f.verifier.callCount())
	}
}

func TestRun_NilCorrectorFailsFast(t *testing.T) {
	f := newFixture(t, "SELECT NVL(bonus,0) FROM hr.compensation;")
	f.verifier.results = []verify.Result{{Err: "syntax error"}}
	o := f.orchestrator(t, nil, 5)

	sum, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.VerifyFailed != 1 {
		t.Fatalf("summary = %s, want verify_fail without correction rounds", sum.String())
	}
	if f.verifier.callCount() != 1 {
		t.Errorf("verifier calls = %d, want 1 (no rounds without a corrector)", f.verifier.callCount())
	}
	log, _ := f.store.GetMigrationLog("proj", "/in/a.sql")
	if log.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1 carried forward for later runs", log.RetryCount)
	}
}

func TestRun_TranslationErrorMarksFailed(t *testing.T) {
	f := newFixture(t, "SELECT 1;")
	o := New(f.store, &fakeTranslator{fail: true}, retriever.New(f.store), f.verifier, nil, Options{
		Project: "proj", Dialect: "oracle", TargetDir: t.TempDir(), MaxRetries: 3, Workers: 1,
	})

	sum, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Failed != 1 {
		t.Fatalf("summary = %s, want 1 failed", sum.String())
	}
	log, _ := f.store.GetMigrationLog("proj", "/in/a.sql")
	if log.Status != store.StatusFailed || !strings.Contains(log.LastErrorMsg, "unparseable") {
		t.Errorf("log = %+v, want FAILED with translator error", log)
	}
	if f.verifier.callCount() != 0 {
		t.Error("verifier invoked after unrecoverable translation error")
	}
}

func TestRun_DeselectedAssetsIgnored(t *testing.T) {
	f := newFixture(t, "SELECT 1;")
	if err := f.store.SetSelection("proj", "/in/a.sql", false); err != nil {
		t.Fatal(err)
	}
	o := f.orchestrator(t, nil, 3)

	sum, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum != (Summary{}) {
		t.Errorf("summary = %s, want nothing processed", sum.String())
	}
}

func TestRun_MaxRoundsCapsCorrectorWork(t *testing.T) {
	f := newFixture(t, "SELECT NVL(bonus,0) FROM hr.compensation;")
	f.verifier.results = []verify.Result{{Err: "still broken"}}
	co := &fakeCorrector{}
	o := New(f.store, &fakeTranslator{}, retriever.New(f.store), f.verifier, co, Options{
		Project: "proj", Dialect: "oracle", TargetDir: t.TempDir(),
		MaxRetries: 10, MaxRounds: 2, Workers: 1,
	})

	sum, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.VerifyFailed != 1 {
		t.Fatalf("summary = %s, want verify_fail", sum.String())
	}
	if co.rounds != 2 {
		t.Errorf("corrector rounds = %d, want capped at 2", co.rounds)
	}
}

func TestRun_ResetReprocessesFrozenAsset(t *testing.T) {
	f := newFixture(t, "SELECT NVL(bonus,0) FROM hr.compensation;")
	f.verifier.results = []verify.Result{{Err: "boom"}}
	o := f.orchestrator(t, nil, 1)

	if _, err := o.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.ResetMigrationLogs("proj"); err != nil {
		t.Fatal(err)
	}

	f.verifier.results = nil // verification now passes
	sum, err := o.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.Done != 1 {
		t.Errorf("summary after reset = %s, want done", sum.String())
	}
}
