package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StoreTarget is one store's target and realized sales for one fiscal month.
// Owned by the target-setting workflow; the commission engine only reads it.
type StoreTarget struct {
	StoreCode   string          `gorm:"primary_key;size:30" json:"store_code" binding:"required"`
	FiscalMonth string          `gorm:"primary_key;size:50" json:"fiscal_month" binding:"required"`
	StoreType   string          `gorm:"size:50" json:"store_type"`
	TargetValue decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"target_value"`
	SalesValue  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"sales_value"`
	StoreStatus PeriodStatus    `gorm:"size:20;default:'draft'" json:"store_status"`
	StaffStatus PeriodStatus    `gorm:"size:20;default:'draft'" json:"staff_status"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	CreatorCode string          `gorm:"size:30" json:"creator_code"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (StoreTarget) TableName() string {
	return "target_stores_main"
}

// GetStoreTargets loads the target rows for every store/month of a resolved
// computation set.
func GetStoreTargets(tx *gorm.DB, storeCodes []string, fiscalMonths []string) ([]StoreTarget, error) {
	var targets []StoreTarget
	err := tx.Where("store_code IN ? AND fiscal_month IN ?", storeCodes, fiscalMonths).
		Find(&targets).Error
	if err != nil {
		return nil, err
	}
	return targets, nil
}
