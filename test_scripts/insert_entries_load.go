package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Entry mirrors the API's JSON form of a directory entry
type Entry struct {
	DN         string              `json:"dn"`
	Attributes map[string][]string `json:"attributes"`
}

// generateRandomName generates a random 6-letter name
func generateRandomName() string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	name := make([]byte, 6)
	for i := range name {
		name[i] = letters[rand.Intn(len(letters))]
	}
	return string(name)
}

// insertEntry sends a POST request to insert an entry
func insertEntry(baseURL string, entry Entry) error {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	resp, err := http.Post(baseURL+"/entries", "application/json", bytes.NewBuffer(entryJSON))
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return nil
}

func main() {
	baseURL := "http://localhost:8080"
	count := 10000
	if len(os.Args) > 1 {
		n, err := strconv.Atoi(os.Args[1])
		if err != nil {
			fmt.Printf("invalid count %q\n", os.Args[1])
			os.Exit(1)
		}
		count = n
	}

	fmt.Printf("Inserting %d entries into %s...\n", count, baseURL)
	start := time.Now()
	errors := 0

	for i := 0; i < count; i++ {
		name := generateRandomName()
		entry := Entry{
			DN: fmt.Sprintf("CN=%s-%d,OU=Load,DC=example,DC=com", name, i),
			Attributes: map[string][]string{
				"cn":   {fmt.Sprintf("%s-%d", name, i)},
				"mail": {fmt.Sprintf("%s.%d@example.com", name, i)},
			},
		}
		if err := insertEntry(baseURL, entry); err != nil {
			errors++
			if errors < 10 {
				fmt.Printf("ERROR: %v\n", err)
			}
		}

		if (i+1)%1000 == 0 {
			fmt.Printf("  %d inserted (%.0f/s)\n", i+1, float64(i+1)/time.Since(start).Seconds())
		}
	}

	elapsed := time.Since(start)
	fmt.Printf("Done: %d entries in %v (%.0f/s), %d errors\n",
		count, elapsed, float64(count)/elapsed.Seconds(), errors)
}
