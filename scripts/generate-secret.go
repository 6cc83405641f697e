// Package main is a development utility for generating a session signing
// secret in the format the server expects. It prints the raw secret together
// with ready-to-paste shell and docker-compose snippets so developers can
// quickly configure a local instance without reaching for openssl. Rotating
// the secret invalidates every outstanding session token, so do not reuse
// generated secrets across environments.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
)

func main() {
	// Generate random bytes
	randomBytes := make([]byte, 32)
	_, err := rand.Read(randomBytes)
	if err != nil {
		log.Fatal(err)
	}

	secret := hex.EncodeToString(randomBytes)

	fmt.Println("==========================================================")
	fmt.Println("Session Secret Generated")
	fmt.Println("==========================================================")
	fmt.Printf("\nSecret: %s\n", secret)
	fmt.Println("\n==========================================================")
	fmt.Println("Shell:")
	fmt.Println("==========================================================")
	fmt.Printf("\nexport JWP_SESSION_SECRET=%s\n", secret)
	fmt.Println("\n==========================================================")
	fmt.Println("docker-compose:")
	fmt.Println("==========================================================")
	fmt.Printf(`
environment:
  - JWP_SESSION_SECRET=%s
`, secret)
	fmt.Println("\n==========================================================")
}
