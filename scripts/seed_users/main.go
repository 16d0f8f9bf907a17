// Seeds a few demo users so login and the terminal client work against a
// fresh cluster. Run the messaging service once first so the schema exists.
package main

import (
	"log"

	"github.com/bazarya/chat-core/pkg/db"
	"github.com/bazarya/chat-core/pkg/model"
)

func main() {
	session, err := db.NewSession([]string{"localhost:9042"}, "chat")
	if err != nil {
		log.Fatalf("Failed to connect to ScyllaDB: %v", err)
	}
	defer session.Close()

	users := []model.UserProfile{
		{ID: 1, UserName: "alice", ImgURL: "https://example.com/avatars/alice.png"},
		{ID: 2, UserName: "bob", ImgURL: "https://example.com/avatars/bob.png"},
		{ID: 3, UserName: "carol", ImgURL: ""},
	}

	for _, u := range users {
		err := session.Query(
			`INSERT INTO users (id, user_name, img_url) VALUES (?, ?, ?)`,
			u.ID, u.UserName, u.ImgURL,
		).Exec()
		if err != nil {
			log.Fatalf("Failed to insert user %d: %v", u.ID, err)
		}
		log.Printf("Seeded user %d (%s)", u.ID, u.UserName)
	}
}
