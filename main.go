package main

import (
	"log"

	"github.com/joho/godotenv"

	"chatsync/cmd"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cmd.Execute()
}
