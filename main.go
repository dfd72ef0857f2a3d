package main

import (
	"log"

	"url-rewrite/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
