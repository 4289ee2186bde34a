package models

import (
	"sort"
	"time"

	"gorm.io/gorm"
)

// CommissionRuleAssignment maps a (store_type, position) pair to a rule. One
// position may carry several active rules; every one of them is applied and
// the amounts are summed per staff member.
type CommissionRuleAssignment struct {
	RuleCode    string    `gorm:"primary_key;size:30" json:"rule_code" binding:"required"`
	StoreType   string    `gorm:"primary_key;size:50" json:"store_type" binding:"required"`
	Position    string    `gorm:"primary_key;size:60" json:"position" binding:"required"`
	IsActive    *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	CreatorCode string    `gorm:"size:30" json:"creator_code"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CommissionRuleAssignment) TableName() string {
	return "commissions_rule_assignment"
}

// GetActiveAssignments resolves position -> applicable rule codes for one
// store type. Positions with no active assignment are simply absent from the
// map; the engine writes a zero-amount audit row for their staff. Rule codes
// are sorted so that iteration order, and with it recompute output, stays
// deterministic.
func GetActiveAssignments(tx *gorm.DB, storeType string, positions []string) (map[string][]string, error) {
	var rows []CommissionRuleAssignment
	err := tx.Where("store_type = ? AND position IN ? AND is_active = true", storeType, positions).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	assignments := make(map[string][]string)
	for _, row := range rows {
		assignments[row.Position] = append(assignments[row.Position], row.RuleCode)
	}
	for position := range assignments {
		sort.Strings(assignments[position])
	}
	return assignments, nil
}
