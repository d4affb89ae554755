package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"duet/internal/commands"
	"duet/internal/config"
)

func main() {
	userID := flag.String("user", "", "User id to mint a token for")
	flag.Parse()

	if *userID == "" {
		fmt.Println("Usage: token -user <id>")
		os.Exit(1)
	}

	cfg, err := config.Load(true)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := commands.IssueToken(context.Background(), *userID, cfg, os.Stdout); err != nil {
		fmt.Printf("Error issuing token: %v\n", err)
		os.Exit(1)
	}
}
