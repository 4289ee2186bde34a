package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func sp(s string) *string {
	return &s
}

func TestBucketCommissionSummaries(t *testing.T) {
	individual := string(RuleClassIndividual)
	team := string(RuleClassTeam)
	adjustment := RuleDetailCodeAdjustment

	rows := []commissionSummaryRow{
		{StoreCode: "S001", StoreName: sp("Main"), Status: sp("approved"),
			RuleDetailCode: sp("R1-hit"), RuleClass: &individual, Amount: dp("300")},
		{StoreCode: "S001", StoreName: sp("Main"), Status: sp("approved"),
			RuleDetailCode: sp("R2-hit"), RuleClass: &team, Amount: dp("150")},
		// Manual adjustment: sentinel detail code, no catalog bracket, NULL class.
		{StoreCode: "S001", StoreName: sp("Main"), Status: sp("approved"),
			RuleDetailCode: &adjustment, RuleClass: nil, Amount: dp("-40")},
		// Sentinel audit row with no payable record: NULL class, no detail match.
		{StoreCode: "S001", StoreName: sp("Main"), Status: sp("approved"),
			RuleDetailCode: sp(RuleDetailCodeNoBracket), RuleClass: nil, Amount: nil},
		// Second store with nothing computed yet still gets a summary row.
		{StoreCode: "S002", StoreName: sp("Annex"), Status: sp("draft"),
			RuleDetailCode: nil, RuleClass: nil, Amount: nil},
	}

	summaries := bucketCommissionSummaries(rows)
	if len(summaries) != 2 {
		t.Fatalf("expected 2 store summaries, got %d", len(summaries))
	}

	first := summaries[0]
	if first.StoreCode != "S001" {
		t.Fatalf("store order not preserved: %+v", summaries)
	}
	if !first.AmountIndividual.Equal(d("300")) {
		t.Fatalf("individual bucket = %s, want 300", first.AmountIndividual)
	}
	if !first.AmountTeam.Equal(d("150")) {
		t.Fatalf("team bucket = %s, want 150", first.AmountTeam)
	}
	if !first.AmountAdjustment.Equal(d("-40")) {
		t.Fatalf("adjustment bucket = %s, want -40", first.AmountAdjustment)
	}

	second := summaries[1]
	if second.StoreCode != "S002" || !second.AmountIndividual.Equal(decimal.Zero) ||
		!second.AmountTeam.Equal(decimal.Zero) || !second.AmountAdjustment.Equal(decimal.Zero) {
		t.Fatalf("empty store should have zero buckets: %+v", second)
	}
	if second.Status != PeriodStatusDraft {
		t.Fatalf("status = %s, want draft", second.Status)
	}
}

func TestBucketCommissionSummaries_AdjustmentBeatsRuleClass(t *testing.T) {
	// Even if a catalog bracket were ever named like the sentinel, the detail
	// code decides: adjustment amounts never leak into the class buckets.
	adjustment := RuleDetailCodeAdjustment
	individual := string(RuleClassIndividual)
	rows := []commissionSummaryRow{
		{StoreCode: "S001", RuleDetailCode: &adjustment, RuleClass: &individual, Amount: dp("90")},
	}
	summaries := bucketCommissionSummaries(rows)
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
	if !summaries[0].AmountAdjustment.Equal(d("90")) {
		t.Fatalf("adjustment bucket = %s, want 90", summaries[0].AmountAdjustment)
	}
	if !summaries[0].AmountIndividual.Equal(decimal.Zero) {
		t.Fatalf("individual bucket = %s, want 0", summaries[0].AmountIndividual)
	}
}
