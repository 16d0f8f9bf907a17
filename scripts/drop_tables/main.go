package main

import (
	"log"

	"github.com/bazarya/chat-core/pkg/db"
)

func main() {
	session, err := db.NewSession([]string{"localhost:9042"}, "chat")
	if err != nil {
		log.Fatalf("Failed to connect to ScyllaDB: %v", err)
	}
	defer session.Close()

	tables := []string{
		"messages",
		"conversation_summaries",
		"unread_counters",
		"conversations_by_pair",
		"conversations",
		"users",
	}

	for _, table := range tables {
		log.Printf("Dropping table %s...", table)
		if err := session.Query("DROP TABLE IF EXISTS " + table).Exec(); err != nil {
			log.Fatalf("Failed to drop %s: %v", table, err)
		}
	}
	log.Println("Tables dropped successfully.")
}
