// Command client is a terminal chat client for manual testing against a
// running gateway and API.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/bazarya/chat-core/pkg/chatclient"
	"github.com/bazarya/chat-core/pkg/model"
)

func login(apiBase string, userID int64) (string, error) {
	body, _ := json.Marshal(map[string]int64{"userId": userID})
	resp, err := http.Post(apiBase+"/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("login failed: %s", strings.TrimSpace(string(msg)))
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func openConversation(apiBase, token string, otherUserID, listingID int64) (model.Conversation, error) {
	body, _ := json.Marshal(map[string]int64{"otherUserId": otherUserID, "listingId": listingID})
	req, err := http.NewRequest(http.MethodPost, apiBase+"/conversations", bytes.NewReader(body))
	if err != nil {
		return model.Conversation{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return model.Conversation{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return model.Conversation{}, fmt.Errorf("conversation open failed: %s", strings.TrimSpace(string(msg)))
	}

	var conv model.Conversation
	if err := json.NewDecoder(resp.Body).Decode(&conv); err != nil {
		return model.Conversation{}, err
	}
	return conv, nil
}

func main() {
	gatewayAddr := flag.String("addr", "localhost:8080", "gateway address")
	apiBase := flag.String("api", "http://localhost:8081", "api base url")
	userID := flag.Int64("user", 0, "user id to chat as")
	otherUserID := flag.Int64("to", 0, "user id to chat with")
	listingID := flag.Int64("listing", 0, "listing the conversation is about")
	flag.Parse()

	if *userID == 0 || *otherUserID == 0 {
		log.Fatal("both -user and -to are required")
	}

	token, err := login(*apiBase, *userID)
	if err != nil {
		log.Fatal(err)
	}

	conv, err := openConversation(*apiBase, token, *otherUserID, *listingID)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("conversation %d with user %d\n", conv.ID, *otherUserID)

	wsURL := url.URL{Scheme: "ws", Host: *gatewayAddr, Path: "/ws"}
	session := chatclient.New(chatclient.Options{
		URL:   wsURL.String(),
		Token: token,
		OnMessage: func(msg model.Message) {
			fmt.Printf("\r%s: %s\n> ", msg.Sender.UserName, msg.Text)
		},
		OnPresence: func(userIDs []string) {
			fmt.Printf("\ronline: %s\n> ", strings.Join(userIDs, ", "))
		},
		OnStateChange: func(s chatclient.State) {
			fmt.Printf("\r[%s]\n> ", s)
		},
		Logger: zerolog.Nop(),
	})
	session.Join(conv.ID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go session.Run(ctx)

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			fmt.Print("> ")
			continue
		}
		if text == "/quit" {
			return
		}

		if _, err := session.Send(ctx, conv.ID, text); err != nil {
			var sendErr *chatclient.SendError
			if errors.As(err, &sendErr) {
				// Hand the draft back so it can be resent.
				fmt.Printf("not sent (%s)\n> %s", sendErr.Reason, sendErr.Text)
				continue
			}
			if errors.Is(err, chatclient.ErrNotConnected) {
				fmt.Printf("offline, try again\n> %s", text)
				continue
			}
			log.Println("send:", err)
		}
		fmt.Print("> ")
	}
}
