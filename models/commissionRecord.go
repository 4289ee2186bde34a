package models

import (
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/commissions_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CommissionRecord is one payable commission line: staff x rule bracket for a
// store-period. Fully owned by the engine except for manual adjustment rows
// (rule_detail_code = "adjustment"), which recompute must never touch.
type CommissionRecord struct {
	FiscalMonth        string          `gorm:"primary_key;size:50" json:"fiscal_month"`
	StaffCode          string          `gorm:"primary_key;size:30" json:"staff_code"`
	StoreCode          string          `gorm:"primary_key;size:30" json:"store_code"`
	RuleDetailCode     string          `gorm:"primary_key;size:60" json:"rule_detail_code"`
	Amount             decimal.Decimal `gorm:"type:decimal(12,2)" json:"amount"`
	TotalDaysStoreWork decimal.Decimal `gorm:"type:decimal(12,2)" json:"total_days_store_work"`
	Remarks            string          `gorm:"type:text" json:"remarks"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	CreatorCode        string          `gorm:"size:30" json:"creator_code"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CommissionRecord) TableName() string {
	return "commissions_staff"
}

// CommissionRecordDetail is the audit twin of CommissionRecord. It snapshots
// the inputs (targets, sales, achievement rates, attendance) at computation
// time, and is written for every staff member of the period even when no rule
// or bracket applied.
type CommissionRecordDetail struct {
	FiscalMonth          string          `gorm:"primary_key;size:50" json:"fiscal_month"`
	StoreCode            string          `gorm:"primary_key;size:30" json:"store_code"`
	StaffCode            string          `gorm:"primary_key;size:30" json:"staff_code"`
	RuleCode             string          `gorm:"primary_key;size:30" json:"rule_code"`
	RuleDetailCode       string          `gorm:"primary_key;size:60" json:"rule_detail_code"`
	StoreTargetValue     decimal.Decimal `gorm:"type:decimal(20,4)" json:"store_target_value"`
	StoreSalesValue      decimal.Decimal `gorm:"type:decimal(20,4)" json:"store_sales_value"`
	StoreAchievementRate decimal.Decimal `gorm:"type:decimal(12,2)" json:"store_achievement_rate"`
	StaffTargetValue     decimal.Decimal `gorm:"type:decimal(20,4)" json:"staff_target_value"`
	StaffSalesValue      decimal.Decimal `gorm:"type:decimal(20,4)" json:"staff_sales_value"`
	StaffAchievementRate decimal.Decimal `gorm:"type:decimal(12,2)" json:"staff_achievement_rate"`
	ExpectedAttendance   decimal.Decimal `gorm:"type:decimal(12,2)" json:"expected_attendance"`
	ActualAttendance     decimal.Decimal `gorm:"type:decimal(12,2)" json:"actual_attendance"`
	Position             string          `gorm:"size:100" json:"position"`
	SalaryCoefficient    decimal.Decimal `gorm:"type:decimal(12,2)" json:"salary_coefficient"`
	Amount               decimal.Decimal `gorm:"type:decimal(12,2)" json:"amount"`
	TotalDaysStoreWork   decimal.Decimal `gorm:"type:decimal(12,2)" json:"total_days_store_work"`
	Remarks              string          `gorm:"type:text" json:"remarks"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	CreatorCode          string          `gorm:"size:30" json:"creator_code"`
}

func (CommissionRecordDetail) TableName() string {
	return "commissions_staff_detail"
}

// ReplaceCommissionRecords swaps the computed output of one store-period:
// every prior record and detail row is deleted except manual adjustments, then
// the fresh sets are inserted. Must run inside the caller's transaction so the
// delete and insert commit or roll back together.
func ReplaceCommissionRecords(tx *gorm.DB, storeCode string, fiscalMonth string, records []CommissionRecord, details []CommissionRecordDetail) error {
	err := tx.Where("store_code = ? AND fiscal_month = ? AND rule_detail_code <> ?",
		storeCode, fiscalMonth, RuleDetailCodeAdjustment).
		Delete(&CommissionRecord{}).Error
	if err != nil {
		return err
	}
	err = tx.Where("store_code = ? AND fiscal_month = ? AND rule_detail_code <> ?",
		storeCode, fiscalMonth, RuleDetailCodeAdjustment).
		Delete(&CommissionRecordDetail{}).Error
	if err != nil {
		return err
	}
	if len(records) > 0 {
		if err := tx.CreateInBatches(records, 200).Error; err != nil {
			return err
		}
	}
	if len(details) > 0 {
		if err := tx.CreateInBatches(details, 200).Error; err != nil {
			return err
		}
	}
	return nil
}

// AddManualAdjustment inserts a hand-entered commission row. Adjustment rows
// carry the sentinel rule_detail_code and persist across recomputes until
// explicitly removed.
func AddManualAdjustment(tx *gorm.DB, fiscalMonth string, storeCode string, staffCode string, amount decimal.Decimal, remarks string, creatorCode string) (*CommissionRecord, error) {
	record := CommissionRecord{
		FiscalMonth:    fiscalMonth,
		StaffCode:      staffCode,
		StoreCode:      storeCode,
		RuleDetailCode: RuleDetailCodeAdjustment,
		Amount:         amount,
		Remarks:        remarks,
		CreatorCode:    creatorCode,
	}
	if err := tx.Create(&record).Error; err != nil {
		if utils.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("adjustment already exists for staff %s in %s/%s", staffCode, storeCode, fiscalMonth)
		}
		return nil, err
	}
	return &record, nil
}

// DeleteManualAdjustment removes a previously entered adjustment row. This is
// the only delete path for adjustment rows.
func DeleteManualAdjustment(tx *gorm.DB, fiscalMonth string, storeCode string, staffCode string) error {
	return tx.Where("fiscal_month = ? AND store_code = ? AND staff_code = ? AND rule_detail_code = ?",
		fiscalMonth, storeCode, staffCode, RuleDetailCodeAdjustment).
		Delete(&CommissionRecord{}).Error
}

// CommissionStoreSummary is one row of the period listing: per-store amounts
// bucketed by rule class.
type CommissionStoreSummary struct {
	StoreCode        string          `json:"store_code"`
	StoreName        string          `json:"store_name"`
	StoreType        string          `json:"store_type"`
	FiscalPeriod     string          `json:"fiscal_period"`
	Status           PeriodStatus    `json:"status"`
	AmountIndividual decimal.Decimal `json:"amount_individual"`
	AmountTeam       decimal.Decimal `json:"amount_team"`
	AmountAdjustment decimal.Decimal `json:"amount_adjustment"`
}

// commissionSummaryRow is one grouped row of the month-summary query.
// Adjustment rows carry the sentinel rule_detail_code and join no catalog
// bracket, so rule_class is NULL for them.
type commissionSummaryRow struct {
	StoreCode      string
	StoreName      *string
	StoreType      *string
	FiscalPeriod   *string
	Status         *string
	RuleDetailCode *string
	RuleClass      *string
	Amount         *decimal.Decimal
}

// GetCommissionSummaryByMonth lists every commission period of a fiscal month
// with amounts grouped by rule class.
func GetCommissionSummaryByMonth(tx *gorm.DB, fiscalMonth string) ([]CommissionStoreSummary, error) {
	var rows []commissionSummaryRow
	err := tx.Table("commissions_store").
		Select(`commissions_store.store_code, store.store_name, commissions_store.store_type,
			commissions_store.fiscal_period, commissions_store.status,
			commissions_staff.rule_detail_code, commissions_rule.rule_class,
			SUM(commissions_staff.amount) AS amount`).
		Joins(`LEFT JOIN commissions_staff ON commissions_staff.fiscal_month = commissions_store.fiscal_month
			AND commissions_staff.store_code = commissions_store.store_code`).
		Joins(`LEFT JOIN commissions_rule_detail ON commissions_rule_detail.rule_detail_code = commissions_staff.rule_detail_code`).
		Joins(`LEFT JOIN commissions_rule ON commissions_rule.rule_code = commissions_rule_detail.rule_code`).
		Joins(`LEFT JOIN store ON store.store_code = commissions_store.store_code`).
		Where("commissions_store.fiscal_month = ?", fiscalMonth).
		Group(`commissions_store.store_code, store.store_name, commissions_store.store_type,
			commissions_store.fiscal_period, commissions_store.status,
			commissions_staff.rule_detail_code, commissions_rule.rule_class`).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return bucketCommissionSummaries(rows), nil
}

// bucketCommissionSummaries folds grouped record rows into one summary per
// store, preserving first-seen store order. Manual adjustment rows must be
// classified by their sentinel detail code before rule_class is consulted:
// they never match a catalog bracket, so their rule_class is always NULL.
func bucketCommissionSummaries(rows []commissionSummaryRow) []CommissionStoreSummary {
	byStore := make(map[string]*CommissionStoreSummary)
	order := make([]string, 0)
	for _, row := range rows {
		summary, ok := byStore[row.StoreCode]
		if !ok {
			summary = &CommissionStoreSummary{
				StoreCode:        row.StoreCode,
				StoreName:        stringOrEmpty(row.StoreName),
				StoreType:        stringOrEmpty(row.StoreType),
				FiscalPeriod:     stringOrEmpty(row.FiscalPeriod),
				Status:           PeriodStatus(stringOrEmpty(row.Status)),
				AmountIndividual: decimal.Zero,
				AmountTeam:       decimal.Zero,
				AmountAdjustment: decimal.Zero,
			}
			byStore[row.StoreCode] = summary
			order = append(order, row.StoreCode)
		}
		amount := decimal.Zero
		if row.Amount != nil {
			amount = *row.Amount
		}
		if row.RuleDetailCode != nil && *row.RuleDetailCode == RuleDetailCodeAdjustment {
			summary.AmountAdjustment = summary.AmountAdjustment.Add(amount)
			continue
		}
		if row.RuleClass == nil {
			continue
		}
		switch RuleClass(*row.RuleClass) {
		case RuleClassIndividual:
			summary.AmountIndividual = summary.AmountIndividual.Add(amount)
		case RuleClassTeam:
			summary.AmountTeam = summary.AmountTeam.Add(amount)
		case RuleClassAdjustment:
			summary.AmountAdjustment = summary.AmountAdjustment.Add(amount)
		}
	}

	summaries := make([]CommissionStoreSummary, 0, len(order))
	for _, code := range order {
		summaries = append(summaries, *byStore[code])
	}
	return summaries
}

// StaffCommissionDetail is one explanation row of the staff preview: which
// rule and bracket produced the amount, and the formula applied.
type StaffCommissionDetail struct {
	RuleName  string          `json:"rule_name"`
	RuleClass RuleClass       `json:"rule_class"`
	RuleType  RuleType        `json:"rule_type"`
	RuleBasis RuleBasis       `json:"rule_basis"`
	Formula   string          `json:"formula"`
	Amount    decimal.Decimal `json:"amount"`
}

// GetStaffCommissionDetails returns the rule-explanation rows for one staff
// member of a store-period. Read-only: nothing is recomputed here.
func GetStaffCommissionDetails(tx *gorm.DB, staffCode string, storeCode string, fiscalMonth string) ([]StaffCommissionDetail, error) {
	var rows []struct {
		RuleName   string
		RuleClass  string
		RuleType   string
		RuleBasis  string
		StartValue *decimal.Decimal
		EndValue   *decimal.Decimal
		Value      *decimal.Decimal
		Amount     *decimal.Decimal
	}
	err := tx.Table("commissions_staff").
		Select(`commissions_rule.rule_name, commissions_rule.rule_class, commissions_rule.rule_type,
			commissions_rule.rule_basis, commissions_rule_detail.start_value,
			commissions_rule_detail.end_value, commissions_rule_detail.value, commissions_staff.amount`).
		Joins(`JOIN commissions_rule_detail ON commissions_staff.rule_detail_code = commissions_rule_detail.rule_detail_code`).
		Joins(`JOIN commissions_rule ON commissions_rule_detail.rule_code = commissions_rule.rule_code`).
		Where("commissions_staff.staff_code = ? AND commissions_staff.store_code = ? AND commissions_staff.fiscal_month = ?",
			staffCode, storeCode, fiscalMonth).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	details := make([]StaffCommissionDetail, 0, len(rows))
	for _, row := range rows {
		value := decimal.Zero
		if row.Value != nil {
			value = *row.Value
		}
		var formula string
		switch RuleType(row.RuleType) {
		case RuleTypeCommission:
			formula = fmt.Sprintf(" * %s%%", value)
		case RuleTypeIncentive:
			formula = fmt.Sprintf("=> ¥%s", value)
		default:
			formula = value.String()
		}
		if row.StartValue != nil {
			if row.EndValue != nil {
				formula = fmt.Sprintf("≥ %s%% < %s%%  %s", row.StartValue, row.EndValue, formula)
			} else {
				formula = fmt.Sprintf("≥ %s%%  %s", row.StartValue, formula)
			}
		} else if row.EndValue != nil {
			formula = fmt.Sprintf("< %s%%  %s", row.EndValue, formula)
		}

		amount := decimal.Zero
		if row.Amount != nil {
			amount = *row.Amount
		}
		details = append(details, StaffCommissionDetail{
			RuleName:  row.RuleName,
			RuleClass: RuleClass(row.RuleClass),
			RuleType:  RuleType(row.RuleType),
			RuleBasis: RuleBasis(row.RuleBasis),
			Formula:   formula,
			Amount:    amount,
		})
	}
	return details, nil
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
