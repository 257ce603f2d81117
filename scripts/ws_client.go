// Package main runs a demo operator client for the order event feed.
//
//	ADMIN_TOKEN=... go run ./scripts -types order.dead_lettered,order.retry_scheduled
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	types := flag.String("types", "", "comma separated event types to follow (default all)")
	demo := flag.Bool("demo", false, "post a demo order to /webhook after subscribing")
	flag.Parse()

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}
	token := os.Getenv("ADMIN_TOKEN")

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/admin/events/ws"}
	hdr := http.Header{}
	if token != "" {
		hdr.Set("Authorization", "Bearer "+token)
	}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}
	sub := map[string]any{}
	if *types != "" {
		sub["types"] = strings.Split(*types, ",")
	}
	pl, _ := json.Marshal(sub)
	if err := c.WriteJSON(wsMessage{Type: "subscribe", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m wsMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			if m.Type == "ping" {
				_ = c.WriteJSON(wsMessage{Type: "pong"})
				continue
			}
			log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		}
	}()

	if *demo {
		time.Sleep(500 * time.Millisecond)
		order := fmt.Sprintf(`{"orders":[{"externalOrderId":"demo-%d","orderStatus":1,"paymentStatus":0,"totalCost":100,"email":"demo@example.com","items":[{"externalItemId":1,"name":"Demo","cost":100,"quantity":1}]}]}`, time.Now().Unix())
		resp, err := http.Post(fmt.Sprintf("http://localhost:%s/webhook", port), "application/json", bytes.NewReader([]byte(order)))
		if err != nil {
			log.Fatal(err)
		}
		_ = resp.Body.Close()
		log.Printf("demo order posted: %s", resp.Status)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	select {
	case <-stop:
		_ = c.WriteJSON(wsMessage{Type: "complete", ID: "1"})
	case <-done:
	}
}
