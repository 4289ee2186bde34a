package models

import (
	"reflect"
	"testing"
)

func TestPeriodStoreCodes(t *testing.T) {
	var missing *CommissionPeriod
	if got := missing.StoreCodes("S001"); !reflect.DeepEqual(got, []string{"S001"}) {
		t.Fatalf("nil period should default to the anchor store, got %v", got)
	}

	period := &CommissionPeriod{StoreCode: "S001", MergedStoreCodes: "S002, S003,S001"}
	got := period.StoreCodes("S001")
	want := []string{"S001", "S002", "S003"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("StoreCodes = %v, want %v (anchor first, no duplicates)", got, want)
	}
}

func TestPeriodFiscalMonths(t *testing.T) {
	var missing *CommissionPeriod
	if got := missing.FiscalMonths("2026-04"); !reflect.DeepEqual(got, []string{"2026-04"}) {
		t.Fatalf("nil period should default to the anchor month, got %v", got)
	}

	same := &CommissionPeriod{FiscalPeriod: "2026-04"}
	if got := same.FiscalMonths("2026-04"); !reflect.DeepEqual(got, []string{"2026-04"}) {
		t.Fatalf("fiscal_period equal to anchor should stay single, got %v", got)
	}

	span := &CommissionPeriod{FiscalPeriod: "2026-03,2026-04"}
	got := span.FiscalMonths("2026-04")
	want := []string{"2026-04", "2026-03"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FiscalMonths = %v, want %v", got, want)
	}
}
