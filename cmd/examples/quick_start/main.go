package main

import (
	"context"
	"fmt"
	"log"
	"net/http/httptest"
	"time"

	"github.com/TheAlpha16/rosweb-go"
	"github.com/TheAlpha16/rosweb-go/server"
)

func main() {
	// Create a bridge server backed by Valkey
	client, err := server.NewValkeyClient("localhost:6379")
	if err != nil {
		log.Fatalf("Failed to connect to Valkey: %v", err)
	}
	broker := server.NewValkeyBroker(client, "quick-start:", nil)
	defer broker.Close()

	srv := server.NewServer(broker, server.WithLongPollTimeout(time.Second))
	defer srv.Close()

	httpServer := httptest.NewServer(srv.Handler())
	defer httpServer.Close()

	// Connect a dashboard bridge to it
	bridge, err := rosweb.NewHTTPBridge(httpServer.URL)
	if err != nil {
		log.Fatalf("Failed to create bridge: %v", err)
	}
	defer bridge.Close()

	// Watch the battery percentage
	battery := bridge.Topic(rosweb.BatteryTopic)
	err = battery.SetCallback(context.Background(), rosweb.BatteryHandler(func(state rosweb.BatteryState) {
		fmt.Printf("Battery at %.1f%%\n", state.Percent())
	}, nil))
	if err != nil {
		log.Fatalf("Failed to subscribe: %v", err)
	}

	fmt.Println("Bridge started! Polling the battery topic...")

	// Publish a few battery states after a short delay
	time.Sleep(1 * time.Second)

	ctx := context.Background()
	for _, remaining := range []int{90, 45, 10} {
		msg := fmt.Sprintf(`{"energy_remaining": %d, "energy_capacity": 100}`, remaining)
		if err := bridge.Publish(ctx, rosweb.BatteryTopic, msg); err != nil {
			log.Printf("Failed to publish: %v", err)
		}
		time.Sleep(1500 * time.Millisecond)
	}

	// Unsubscribe and wait for the poll loop to finish
	if err := battery.Unsubscribe(ctx); err != nil {
		log.Printf("Failed to unsubscribe: %v", err)
	}
	<-battery.Done()
	fmt.Println("Quick start example completed!")
}
