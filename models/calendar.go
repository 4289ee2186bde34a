package models

import (
	"time"

	"gorm.io/gorm"
)

// DimensionDay is one calendar day of the fiscal calendar. The engine only
// reads it to derive the day-span of a commission period.
type DimensionDay struct {
	FinanceYear int       `gorm:"not null" json:"finance_year"`
	FiscalMonth string    `gorm:"size:10" json:"fiscal_month"`
	ActualDate  time.Time `gorm:"primary_key;not null" json:"actual_date"`
	WeekNumber  int       `gorm:"not null" json:"week_number"`
	MonthNumber int       `gorm:"not null" json:"month_number"`
	DayNumber   int       `gorm:"not null" json:"day_number"`
}

func (DimensionDay) TableName() string {
	return "dimension_dayweek"
}

// GetPeriodLengthDays returns the inclusive day-span covered by the given
// fiscal months: max(actual_date) - min(actual_date) + 1. Returns 0 when the
// calendar has no rows for the months, which disables period-length proration
// rather than failing the run.
func GetPeriodLengthDays(tx *gorm.DB, fiscalMonths []string) (int, error) {
	var span struct {
		MinDate *time.Time
		MaxDate *time.Time
	}
	err := tx.Model(&DimensionDay{}).
		Select("MIN(actual_date) AS min_date, MAX(actual_date) AS max_date").
		Where("fiscal_month IN ?", fiscalMonths).
		Scan(&span).Error
	if err != nil {
		return 0, err
	}
	if span.MinDate == nil || span.MaxDate == nil {
		return 0, nil
	}
	return int(span.MaxDate.Sub(*span.MinDate).Hours()/24) + 1, nil
}
