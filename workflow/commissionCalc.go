package workflow

import (
	"sort"

	"bitbucket.org/mmdatafocus/commissions_backend/models"
	"github.com/shopspring/decimal"
)

// The calculation core is deliberately free of database access: the
// orchestration in commissionWorkflow.go prefetches every input, and this file
// turns one CalcInput into the full record/detail output of a store-period.
// That keeps recompute deterministic and lets the rule arithmetic be tested
// without MySQL.

var (
	oneHundred = decimal.NewFromInt(100)
	ten        = decimal.NewFromInt(10)

	discountLow  = decimal.RequireFromString("0.75")
	discountMid  = decimal.RequireFromString("0.85")
	discountFull = decimal.NewFromInt(1)

	rateBandMid  = decimal.NewFromInt(80)
	rateBandFull = decimal.NewFromInt(100)
)

// PeriodContext is the resolved computation set of one run.
type PeriodContext struct {
	AnchorStoreCode   string
	AnchorFiscalMonth string
	StoreType         string
	StoreCodes        []string
	FiscalMonths      []string
	OpeningDays       int
	PeriodLengthDays  int
}

// CalcInput carries every prefetched input of one commission run.
type CalcInput struct {
	Period       PeriodContext
	StoreTargets []models.StoreTarget
	StaffRows    []models.StaffAttendance
	Assignments  map[string][]string // position -> sorted active rule codes
	Rules        map[string]models.CommissionRule
	Brackets     map[string][]models.CommissionRuleBracket
}

// CalcOutput is the replacement record set for the store-period.
type CalcOutput struct {
	Records []models.CommissionRecord
	Details []models.CommissionRecordDetail
}

// staffAggregate is one staff member's figures summed across the computation
// set, with the attendance discount factor already derived from their own
// achievement rate.
type staffAggregate struct {
	StaffCode          string
	Position           string
	SalaryCoefficient  decimal.Decimal
	ExpectedAttendance decimal.Decimal
	ActualAttendance   decimal.Decimal
	TargetValue        decimal.Decimal
	SalesValue         decimal.Decimal
	AchievementRate    decimal.Decimal
	DiscountFactor     decimal.Decimal
}

// positionStat is the per-position attendance pool used by team proration.
type positionStat struct {
	TotalWeightedAttendance decimal.Decimal
	StaffCount              int
}

// Calculate runs the full commission computation for one store-period.
func Calculate(input CalcInput) CalcOutput {
	storeTarget, storeSales := storeTotals(input.StoreTargets)
	storeRate := achievementRate(storeSales, storeTarget)

	staff := aggregateStaffRows(input.StaffRows, input.Period.AnchorFiscalMonth)
	stats := positionStats(staff)

	out := CalcOutput{}
	for _, agg := range staff {
		poolDays := stats[agg.Position].TotalWeightedAttendance

		ruleCodes := input.Assignments[agg.Position]
		if len(ruleCodes) == 0 {
			out.Details = append(out.Details, detailRow(input.Period, agg, storeTarget, storeSales, storeRate,
				models.RuleCodeNone, models.RuleCodeNone, decimal.Zero, poolDays))
			continue
		}

		for _, ruleCode := range ruleCodes {
			rule, ok := input.Rules[ruleCode]
			if !ok {
				// Assignment points at a rule the catalog no longer has.
				out.Details = append(out.Details, detailRow(input.Period, agg, storeTarget, storeSales, storeRate,
					ruleCode, models.RuleDetailCodeNoBracket, decimal.Zero, poolDays))
				continue
			}

			rate := agg.AchievementRate
			sales := agg.SalesValue
			if rule.RuleBasis == models.RuleBasisStore {
				rate = storeRate
				sales = storeSales
			}

			bracket := models.MatchBracket(input.Brackets[ruleCode], rate)
			if bracket == nil {
				out.Details = append(out.Details, detailRow(input.Period, agg, storeTarget, storeSales, storeRate,
					ruleCode, models.RuleDetailCodeNoBracket, decimal.Zero, poolDays))
				continue
			}

			amount := rawAmount(rule, *bracket, sales)
			amount = adjustForAttendance(amount, agg, rule, poolDays, input.Period)
			amount = applyMinimumGuarantee(amount, agg, rule, input.Period)
			amount = roundToTen(amount)

			out.Details = append(out.Details, detailRow(input.Period, agg, storeTarget, storeSales, storeRate,
				ruleCode, bracket.RuleDetailCode, amount, poolDays))
			if amount.GreaterThan(decimal.Zero) {
				out.Records = append(out.Records, models.CommissionRecord{
					FiscalMonth:        input.Period.AnchorFiscalMonth,
					StaffCode:          agg.StaffCode,
					StoreCode:          input.Period.AnchorStoreCode,
					RuleDetailCode:     bracket.RuleDetailCode,
					Amount:             amount,
					TotalDaysStoreWork: poolDays,
				})
			}
		}
	}
	return out
}

func storeTotals(targets []models.StoreTarget) (target decimal.Decimal, sales decimal.Decimal) {
	for _, row := range targets {
		target = target.Add(row.TargetValue)
		sales = sales.Add(row.SalesValue)
	}
	return target, sales
}

// achievementRate is sales/target*100. A zero or negative target yields 0
// rather than an error.
func achievementRate(sales, target decimal.Decimal) decimal.Decimal {
	if !target.GreaterThan(decimal.Zero) {
		return decimal.Zero
	}
	return sales.Mul(oneHundred).DivRound(target, 6)
}

// discountFactor maps a staff achievement rate to the attendance weight used
// by team pools: below 80% counts 0.75, below 100% counts 0.85, at or above
// target counts in full.
func discountFactor(rate decimal.Decimal) decimal.Decimal {
	switch {
	case rate.LessThan(rateBandMid):
		return discountLow
	case rate.LessThan(rateBandFull):
		return discountMid
	default:
		return discountFull
	}
}

// aggregateStaffRows folds the raw attendance rows of the computation set into
// one aggregate per staff member. Attendance, targets and sales are summed;
// position and salary coefficient come from the anchor-month row, falling back
// to the first row in sorted order when the anchor month is absent. Output is
// sorted by staff code so record emission order is stable.
func aggregateStaffRows(rows []models.StaffAttendance, anchorFiscalMonth string) []staffAggregate {
	sorted := make([]models.StaffAttendance, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].StaffCode != sorted[j].StaffCode {
			return sorted[i].StaffCode < sorted[j].StaffCode
		}
		if sorted[i].FiscalMonth != sorted[j].FiscalMonth {
			return sorted[i].FiscalMonth < sorted[j].FiscalMonth
		}
		return sorted[i].StoreCode < sorted[j].StoreCode
	})

	byStaff := make(map[string]*staffAggregate)
	anchored := make(map[string]bool)
	order := make([]string, 0)
	for _, row := range sorted {
		agg, ok := byStaff[row.StaffCode]
		if !ok {
			agg = &staffAggregate{
				StaffCode:         row.StaffCode,
				Position:          row.Position,
				SalaryCoefficient: row.SalaryCoefficient,
			}
			byStaff[row.StaffCode] = agg
			order = append(order, row.StaffCode)
		}
		if row.FiscalMonth == anchorFiscalMonth && !anchored[row.StaffCode] {
			agg.Position = row.Position
			agg.SalaryCoefficient = row.SalaryCoefficient
			anchored[row.StaffCode] = true
		}
		agg.ExpectedAttendance = agg.ExpectedAttendance.Add(row.ExpectedAttendance)
		agg.ActualAttendance = agg.ActualAttendance.Add(row.ActualAttendance)
		agg.TargetValue = agg.TargetValue.Add(row.TargetValue)
		agg.SalesValue = agg.SalesValue.Add(row.SalesValue)
	}

	aggregates := make([]staffAggregate, 0, len(order))
	for _, code := range order {
		agg := byStaff[code]
		agg.AchievementRate = achievementRate(agg.SalesValue, agg.TargetValue)
		agg.DiscountFactor = discountFactor(agg.AchievementRate)
		aggregates = append(aggregates, *agg)
	}
	return aggregates
}

// positionStats accumulates each position's attendance pool:
// sum of actual_attendance weighted by the staff discount factor.
func positionStats(staff []staffAggregate) map[string]positionStat {
	stats := make(map[string]positionStat)
	for _, agg := range staff {
		stat := stats[agg.Position]
		stat.TotalWeightedAttendance = stat.TotalWeightedAttendance.Add(
			agg.ActualAttendance.Mul(agg.DiscountFactor))
		stat.StaffCount++
		stats[agg.Position] = stat
	}
	return stats
}

// rawAmount applies the matched bracket before any attendance handling:
// commission rules pay a percentage of sales, incentive rules a flat amount.
func rawAmount(rule models.CommissionRule, bracket models.CommissionRuleBracket, sales decimal.Decimal) decimal.Decimal {
	if rule.RuleType == models.RuleTypeIncentive {
		return bracket.Value
	}
	return sales.Mul(bracket.Value).DivRound(oneHundred, 6)
}

// attendanceRatio computes actual/denominator with the denominator picked by
// the rule's attendance_calculation_logic. The second return is false when the
// configured denominator is not positive, in which case no adjustment applies.
func attendanceRatio(agg staffAggregate, logic int, period PeriodContext) (decimal.Decimal, bool) {
	var denominator decimal.Decimal
	switch logic {
	case models.AttendanceLogicOpeningDays:
		denominator = decimal.NewFromInt(int64(period.OpeningDays))
	case models.AttendanceLogicPeriodLength:
		denominator = decimal.NewFromInt(int64(period.PeriodLengthDays))
	default:
		denominator = agg.ExpectedAttendance
	}
	if !denominator.GreaterThan(decimal.Zero) {
		return decimal.Zero, false
	}
	return agg.ActualAttendance.DivRound(denominator, 6), true
}

// adjustForAttendance prorates a raw amount by the rule's attendance mode.
// Staff who did not work at all earn nothing; a zero expected attendance or a
// zero team pool leaves the amount unmodified instead of zeroing it.
func adjustForAttendance(amount decimal.Decimal, agg staffAggregate, rule models.CommissionRule, poolDays decimal.Decimal, period PeriodContext) decimal.Decimal {
	if rule.ConsiderAttendance == models.AttendanceIgnore {
		return amount
	}
	if !agg.ActualAttendance.GreaterThan(decimal.Zero) {
		return decimal.Zero
	}
	if agg.ExpectedAttendance.IsZero() {
		return amount
	}
	switch rule.ConsiderAttendance {
	case models.AttendanceTeamPool:
		if !poolDays.GreaterThan(decimal.Zero) {
			return amount
		}
		share := agg.ActualAttendance.Mul(agg.DiscountFactor).DivRound(poolDays, 6)
		return amount.Mul(share)
	case models.AttendanceIndividual:
		ratio, ok := attendanceRatio(agg, rule.AttendanceCalculationLogic, period)
		if !ok {
			return amount
		}
		return amount.Mul(ratio)
	default:
		return amount
	}
}

// applyMinimumGuarantee lifts the amount to the rule's floor, then optionally
// scales or voids the floor by attendance:
//   - minimum_guarantee_on_attendance = 1: the guarantee itself is multiplied
//     by the attendance ratio;
//   - > 1: treated as a percentage threshold below which the guarantee pays 0;
//   - 0: the guarantee applies as-is.
func applyMinimumGuarantee(amount decimal.Decimal, agg staffAggregate, rule models.CommissionRule, period PeriodContext) decimal.Decimal {
	if rule.MinimumGuarantee == nil {
		return amount
	}
	guarantee := *rule.MinimumGuarantee
	if !amount.LessThan(guarantee) {
		return amount
	}

	mode := rule.MinimumGuaranteeOnAttendance
	switch {
	case mode.Equal(decimal.NewFromInt(1)):
		if agg.ExpectedAttendance.GreaterThan(decimal.Zero) {
			if ratio, ok := attendanceRatio(agg, rule.AttendanceCalculationLogic, period); ok {
				return guarantee.Mul(ratio)
			}
		}
		return guarantee
	case mode.GreaterThan(decimal.NewFromInt(1)):
		if agg.ExpectedAttendance.GreaterThan(decimal.Zero) {
			if ratio, ok := attendanceRatio(agg, rule.AttendanceCalculationLogic, period); ok {
				if ratio.Mul(oneHundred).LessThan(mode) {
					return decimal.Zero
				}
			}
		}
		return guarantee
	default:
		return guarantee
	}
}

// roundToTen rounds to the nearest multiple of ten, half away from zero.
func roundToTen(amount decimal.Decimal) decimal.Decimal {
	return amount.DivRound(ten, 0).Mul(ten)
}

func detailRow(period PeriodContext, agg staffAggregate, storeTarget, storeSales, storeRate decimal.Decimal,
	ruleCode string, ruleDetailCode string, amount decimal.Decimal, poolDays decimal.Decimal) models.CommissionRecordDetail {
	return models.CommissionRecordDetail{
		FiscalMonth:          period.AnchorFiscalMonth,
		StoreCode:            period.AnchorStoreCode,
		StaffCode:            agg.StaffCode,
		RuleCode:             ruleCode,
		RuleDetailCode:       ruleDetailCode,
		StoreTargetValue:     storeTarget,
		StoreSalesValue:      storeSales,
		StoreAchievementRate: storeRate.Round(2),
		StaffTargetValue:     agg.TargetValue,
		StaffSalesValue:      agg.SalesValue,
		StaffAchievementRate: agg.AchievementRate.Round(2),
		ExpectedAttendance:   agg.ExpectedAttendance,
		ActualAttendance:     agg.ActualAttendance,
		Position:             agg.Position,
		SalaryCoefficient:    agg.SalaryCoefficient,
		Amount:               amount,
		TotalDaysStoreWork:   poolDays,
	}
}
