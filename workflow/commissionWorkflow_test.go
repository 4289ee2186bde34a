package workflow

import (
	"sync"
	"testing"

	"bitbucket.org/mmdatafocus/commissions_backend/models"
	"bitbucket.org/mmdatafocus/commissions_backend/utils"
)

// NOTE: These tests are intentionally DB-free. They validate the intended
// recompute concurrency semantics: one writer per store-period, concurrent
// callers rejected rather than queued. The lock itself is Redis in production;
// the fake below mirrors redislock's try-once Obtain behavior.

type fakeRecomputeGate struct {
	mu   sync.Mutex
	held map[string]bool

	runs     int
	rejected int
}

func newFakeRecomputeGate() *fakeRecomputeGate {
	return &fakeRecomputeGate{held: map[string]bool{}}
}

func (g *fakeRecomputeGate) recompute(storeCode, fiscalMonth string, fn func()) error {
	key := storeCode + ":" + fiscalMonth

	g.mu.Lock()
	if g.held[key] {
		g.rejected++
		g.mu.Unlock()
		return utils.ErrorRecomputeInProgress
	}
	g.held[key] = true
	g.mu.Unlock()

	fn()

	g.mu.Lock()
	delete(g.held, key)
	g.runs++
	g.mu.Unlock()
	return nil
}

func TestRecompute_ConcurrentCallersAreRejectedNotQueued(t *testing.T) {
	g := newFakeRecomputeGate()

	release := make(chan struct{})
	started := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = g.recompute("S001", "2026-04", func() {
			close(started)
			<-release
		})
	}()
	<-started

	// While the first recompute holds the period, every other caller fails fast.
	for i := 0; i < 10; i++ {
		if err := g.recompute("S001", "2026-04", func() {}); err != utils.ErrorRecomputeInProgress {
			t.Fatalf("expected ErrorRecomputeInProgress while locked, got %v", err)
		}
	}

	// A different store-period is not blocked.
	if err := g.recompute("S002", "2026-04", func() {}); err != nil {
		t.Fatalf("unrelated period should not be blocked: %v", err)
	}

	close(release)
	wg.Wait()

	if g.runs != 2 {
		t.Fatalf("expected 2 completed runs, got %d", g.runs)
	}
	if g.rejected != 10 {
		t.Fatalf("expected 10 rejections, got %d", g.rejected)
	}

	// Once released, the same period can be recomputed again.
	if err := g.recompute("S001", "2026-04", func() {}); err != nil {
		t.Fatalf("recompute after release failed: %v", err)
	}
}

func TestPruneInvalidRules(t *testing.T) {
	rules := map[string]models.CommissionRule{
		"R1": {RuleCode: "R1", RuleType: models.RuleTypeCommission, RuleBasis: models.RuleBasisIndividual},
		"R2": {RuleCode: "R2", RuleType: "bonus", RuleBasis: models.RuleBasisStore},
		"R3": {RuleCode: "R3", RuleType: models.RuleTypeIncentive, RuleBasis: "region"},
		"R4": {RuleCode: "R4", RuleType: models.RuleTypeIncentive, RuleBasis: models.RuleBasisStore},
	}

	removed := pruneInvalidRules(rules)
	if len(removed) != 2 || removed[0] != "R2" || removed[1] != "R3" {
		t.Fatalf("removed = %v, want [R2 R3]", removed)
	}
	if _, ok := rules["R1"]; !ok {
		t.Fatalf("valid rule R1 was pruned")
	}
	if _, ok := rules["R4"]; !ok {
		t.Fatalf("valid rule R4 was pruned")
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 surviving rules, got %d", len(rules))
	}
}

func TestResolveStoreType_Precedence(t *testing.T) {
	targets := []models.StoreTarget{
		{StoreCode: "S002", StoreType: "outlet"},
		{StoreCode: "S001", StoreType: "retail"},
	}

	// Period record wins over target rows.
	period := &models.CommissionPeriod{StoreCode: "S001", StoreType: "franchise"}
	if got := resolveStoreType(period, targets, "S001"); got != "franchise" {
		t.Fatalf("want franchise from period record, got %s", got)
	}

	// Without a period record the anchor store's target row wins.
	if got := resolveStoreType(nil, targets, "S001"); got != "retail" {
		t.Fatalf("want retail from anchor target, got %s", got)
	}

	// Anchor row missing a type: any typed row of the set serves.
	targets[1].StoreType = ""
	if got := resolveStoreType(nil, targets, "S001"); got != "outlet" {
		t.Fatalf("want outlet fallback, got %s", got)
	}

	// Nothing resolvable.
	targets[0].StoreType = ""
	if got := resolveStoreType(nil, targets, "S001"); got != "" {
		t.Fatalf("want empty store type, got %s", got)
	}
}
