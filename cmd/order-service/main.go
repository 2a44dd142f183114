package main

import (
	"log"

	"github.com/jiaulislam/order.ticketing.dev/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatalf("order service failed: %v", err)
	}
}
