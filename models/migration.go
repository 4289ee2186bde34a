package models

import (
	"log"

	"bitbucket.org/mmdatafocus/commissions_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&StoreTarget{}, &StaffAttendance{},
		&CommissionPeriod{}, &CommissionRule{}, &CommissionRuleBracket{}, &CommissionRuleAssignment{},
		&CommissionRecord{}, &CommissionRecordDetail{},
		&DimensionDay{}, &Store{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
