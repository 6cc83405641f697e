// Package main is a smoke-test utility that verifies the tracker's HTTP API
// is reachable and returning valid responses. It issues real HTTP requests to
// the health, readiness, version, and agency-listing endpoints and prints each
// status code and response body, making it useful for quick post-deployment
// checks without needing external tooling like curl or a full integration
// test suite.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
)

func main() {
	base := os.Getenv("JWP_BASE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}

	for _, path := range []string{"/health", "/ready", "/version", "/api/v1/agencies"} {
		resp, err := http.Get(base + path) // #nosec G107 -- base URL is an operator-supplied environment variable
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			fmt.Printf("Error reading body: %v\n", err)
			return
		}

		fmt.Printf("GET %s\n", path)
		fmt.Printf("Status: %d\n", resp.StatusCode)
		fmt.Printf("Response:\n%s\n\n", string(body))
	}
}
