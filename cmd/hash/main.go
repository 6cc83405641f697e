// Package main is a utility for computing and checking the SHA-256 sidecar
// digests used by the snapshot job. Given one or more snapshot files it
// prints each digest in `sha256sum` format, and when a .sha256 sidecar sits
// next to a file it also verifies the file against the recorded digest. The
// binary exits with a non-zero code on any mismatch so a restore can be
// gated on intact snapshots.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/yeryani-tests/joint-work-plan-app/pkg/tablehash"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: %s <snapshot-file> [...]", os.Args[0])
	}

	mismatches := 0
	for _, path := range os.Args[1:] {
		f, err := os.Open(path) // #nosec G703 -- path is an operator-supplied CLI argument
		if err != nil {
			log.Fatalf("Failed to open %s: %v", path, err)
		}
		digest, err := tablehash.Sum(f)
		f.Close()
		if err != nil {
			log.Fatalf("Failed to hash %s: %v", path, err)
		}
		fmt.Print(tablehash.Sidecar(digest, filepath.Base(path)))

		sidecar, err := os.ReadFile(path + ".sha256") // #nosec G703 -- path is an operator-supplied CLI argument
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			log.Fatalf("Failed to read sidecar for %s: %v", path, err)
		}
		expected, _, err := tablehash.ParseSidecar(string(sidecar))
		if err != nil {
			log.Fatalf("Bad sidecar for %s: %v", path, err)
		}
		if strings.EqualFold(digest, expected) {
			fmt.Printf("%s: OK\n", path)
		} else {
			fmt.Printf("%s: MISMATCH (sidecar records %s)\n", path, expected)
			mismatches++
		}
	}

	if mismatches > 0 {
		os.Exit(1)
	}
}
