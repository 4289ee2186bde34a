package models

import (
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/commissions_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CommissionRule is the catalog entry for one compensation rule.
//
// consider_attendance / attendance_calculation_logic /
// minimum_guarantee_on_attendance drive the proration behavior; see enums.go.
type CommissionRule struct {
	RuleCode                     string           `gorm:"primary_key;size:30" json:"rule_code" binding:"required"`
	RuleName                     string           `gorm:"size:120" json:"rule_name"`
	RuleType                     RuleType         `gorm:"size:20;not null" json:"rule_type" binding:"required"`
	RuleBasis                    RuleBasis        `gorm:"size:30;not null" json:"rule_basis" binding:"required"`
	RuleClass                    RuleClass        `gorm:"size:30" json:"rule_class"`
	MinimumGuarantee             *decimal.Decimal `gorm:"type:decimal(12,2)" json:"minimum_guarantee"`
	MinimumGuaranteeOnAttendance decimal.Decimal  `gorm:"type:decimal(12,2);default:0" json:"minimum_guarantee_on_attendance"`
	ConsiderAttendance           int              `gorm:"default:0" json:"consider_attendance"`
	AttendanceCalculationLogic   int              `gorm:"default:0" json:"attendance_calculation_logic"`
	CreatedAt                    time.Time        `gorm:"autoCreateTime" json:"created_at"`
	CreatorCode                  string           `gorm:"size:30" json:"creator_code"`
	UpdatedAt                    time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CommissionRule) TableName() string {
	return "commissions_rule"
}

// CommissionRuleBracket is one achievement-rate tier of a rule:
// [start_value, end_value) with a nil end_value meaning +infinity.
// Value is a percentage for commission rules and a flat amount for incentives.
type CommissionRuleBracket struct {
	RuleDetailCode string           `gorm:"primary_key;size:60" json:"rule_detail_code"`
	RuleCode       string           `gorm:"size:30;not null;index" json:"rule_code" binding:"required"`
	StartValue     decimal.Decimal  `gorm:"type:decimal(12,2);default:0" json:"start_value"`
	EndValue       *decimal.Decimal `gorm:"type:decimal(12,2)" json:"end_value"`
	Value          decimal.Decimal  `gorm:"type:decimal(12,2);default:0" json:"value"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`
	CreatorCode    string           `gorm:"size:30" json:"creator_code"`
	UpdatedAt      time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CommissionRuleBracket) TableName() string {
	return "commissions_rule_detail"
}

// Matches reports whether rate falls inside this bracket
// (inclusive lower bound, exclusive upper bound).
func (b *CommissionRuleBracket) Matches(rate decimal.Decimal) bool {
	if rate.LessThan(b.StartValue) {
		return false
	}
	return b.EndValue == nil || rate.LessThan(*b.EndValue)
}

// MatchBracket selects the bracket of one rule containing the achievement
// rate. Returns nil when no bracket covers it (configuration gap, or rate
// below the lowest tier) - the caller treats that as non-applicable, not as
// an error.
func MatchBracket(brackets []CommissionRuleBracket, rate decimal.Decimal) *CommissionRuleBracket {
	for i := range brackets {
		if brackets[i].Matches(rate) {
			return &brackets[i]
		}
	}
	return nil
}

// GetRulesByCodes loads rule metadata for a set of rule codes, keyed by code.
// The catalog changes rarely, so rows are cached in redis the same way other
// slow-moving reference data is.
func GetRulesByCodes(tx *gorm.DB, ruleCodes []string) (map[string]CommissionRule, error) {
	rules := make(map[string]CommissionRule, len(ruleCodes))
	missing := make([]string, 0, len(ruleCodes))
	for _, code := range ruleCodes {
		var rule CommissionRule
		exists, err := config.GetRedisObject("CommissionRule:"+code, &rule)
		if err != nil {
			return nil, err
		}
		if exists {
			rules[code] = rule
		} else {
			missing = append(missing, code)
		}
	}
	if len(missing) > 0 {
		var rows []CommissionRule
		if err := tx.Where("rule_code IN ?", missing).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, rule := range rows {
			rules[rule.RuleCode] = rule
			_ = config.SetRedisObject("CommissionRule:"+rule.RuleCode, rule, time.Hour)
		}
	}
	return rules, nil
}

// InvalidateRuleCache drops cached rule rows after catalog maintenance.
func InvalidateRuleCache(ruleCodes []string) error {
	keys := make([]string, 0, len(ruleCodes))
	for _, code := range ruleCodes {
		keys = append(keys, "CommissionRule:"+code)
	}
	if len(keys) == 0 {
		return nil
	}
	return config.RemoveRedisKey(keys...)
}

// GetBracketsByRuleCodes prefetches every bracket of the given rules in one
// query, keyed by rule_code with tiers sorted by start_value. Matching then
// happens in memory inside the staff/rule loops.
func GetBracketsByRuleCodes(tx *gorm.DB, ruleCodes []string) (map[string][]CommissionRuleBracket, error) {
	var rows []CommissionRuleBracket
	err := tx.Where("rule_code IN ?", ruleCodes).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	brackets := make(map[string][]CommissionRuleBracket, len(ruleCodes))
	for _, row := range rows {
		brackets[row.RuleCode] = append(brackets[row.RuleCode], row)
	}
	for code := range brackets {
		tiers := brackets[code]
		sort.Slice(tiers, func(i, j int) bool {
			return tiers[i].StartValue.LessThan(tiers[j].StartValue)
		})
	}
	return brackets, nil
}
