package main

import (
	"flag"
	"log"

	"CipherDB/bootstrap"
)

func main() {
	flag.Parse()
	log.Println("Starting engine...")
	if _, err := bootstrap.Run(); err != nil {
		log.Fatalln("Bootstrap failed:", err)
	}
}
