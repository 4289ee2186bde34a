package models

import (
	"fmt"
)

type RuleType string

const (
	RuleTypeCommission RuleType = "commission"
	RuleTypeIncentive  RuleType = "incentive"
)

func (t RuleType) Valid() error {
	switch t {
	case RuleTypeCommission, RuleTypeIncentive:
		return nil
	}
	return fmt.Errorf("invalid rule type %q", string(t))
}

type RuleBasis string

const (
	RuleBasisIndividual RuleBasis = "individual"
	RuleBasisStore      RuleBasis = "store"
)

func (b RuleBasis) Valid() error {
	switch b {
	case RuleBasisIndividual, RuleBasisStore:
		return nil
	}
	return fmt.Errorf("invalid rule basis %q", string(b))
}

type RuleClass string

const (
	RuleClassIndividual  RuleClass = "individual"
	RuleClassTeam        RuleClass = "team"
	RuleClassOperational RuleClass = "operational"
	RuleClassIncentive   RuleClass = "incentive"
	RuleClassAdjustment  RuleClass = "adjustment"
)

// consider_attendance modes (commissions_rule.consider_attendance).
const (
	AttendanceIgnore     = 0 // no attendance adjustment
	AttendanceTeamPool   = 1 // prorate by share of the position's weighted attendance
	AttendanceIndividual = 2 // prorate by the staff member's own attendance ratio
)

// attendance_calculation_logic denominators for individual proration and for
// minimum-guarantee scaling.
const (
	AttendanceLogicExpected     = 0 // actual / expected_attendance
	AttendanceLogicOpeningDays  = 1 // actual / opening_days of the period
	AttendanceLogicPeriodLength = 2 // actual / calendar day-span of the period
)

type PeriodStatus string

const (
	PeriodStatusDraft     PeriodStatus = "draft"
	PeriodStatusSaved     PeriodStatus = "saved"
	PeriodStatusSubmitted PeriodStatus = "submitted"
	PeriodStatusApproved  PeriodStatus = "approved"
	PeriodStatusRejected  PeriodStatus = "rejected"
)

// Sentinel rule_detail_code values. Adjustment rows are entered by hand and
// survive recompute; the audit sentinels only ever appear on detail rows.
const (
	RuleDetailCodeAdjustment = "adjustment"
	RuleDetailCodeNoBracket  = "no_bracket"
	RuleCodeNone             = "no_rule"
)
