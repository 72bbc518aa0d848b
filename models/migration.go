package models

import (
	"log"

	"github.com/splitleasesharath/splitlease-sub012/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{}, &Listing{}, &Proposal{}, &MessageThread{}, &Message{}, &Lease{},
		&SyncQueueEntry{}, &SyncFailureRecord{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
