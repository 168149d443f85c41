package main

import (
	"log"

	"mindbuzzer/internal/server"
)

func main() {
	if err := server.Run(); err != nil {
		log.Fatal(err.Error())
	}
}
