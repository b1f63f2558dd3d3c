//go:build ignore
// +build ignore

// Package main provides a manual concurrency stress test for the lending API.
//
// Usage:
//
//	TOKEN=<librarian jwt> go run ./scripts/concurrency_test.go <book_id> <member_id> [requests]
//
// What it does:
//  1. Fires N goroutines all trying to lend a copy of the same book to the same member at once.
//  2. Prints how many loans were issued and how the rest were refused.
//  3. Re-reads the book and checks available_copies against the loans that went through.
//
// Prerequisites:
//   - Server must be running with a migrated database.
//   - The book must have at least N copies so that only the member quota limits the loans.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

const (
	defaultServerAddr = "http://localhost:8080"
	defaultRequests   = 10
	memberQuota       = 5
)

type loanResult struct {
	StatusCode int
	Body       string
	Err        error
}

type bookCounters struct {
	TotalCopies     int `json:"total_copies"`
	AvailableCopies int `json:"available_copies"`
}

func main() {
	serverAddr := os.Getenv("SERVER_ADDR")
	if serverAddr == "" {
		serverAddr = defaultServerAddr
	}
	token := os.Getenv("TOKEN")

	args := os.Args[1:]
	if len(args) < 2 || token == "" {
		log.Fatal("Usage: TOKEN=<librarian jwt> go run ./scripts/concurrency_test.go <book_id> <member_id> [requests]")
	}
	bookID, memberID := args[0], args[1]
	requests := defaultRequests
	if len(args) >= 3 {
		n, err := strconv.Atoi(args[2])
		if err != nil || n < 1 {
			log.Fatalf("invalid request count %q", args[2])
		}
		requests = n
	}

	before, err := fetchBook(serverAddr, token, bookID)
	if err != nil {
		log.Fatalf("read book: %v", err)
	}

	fmt.Printf("=== Lending Concurrency Test ===\n")
	fmt.Printf("Server   : %s\n", serverAddr)
	fmt.Printf("Book     : %s (available %d/%d)\n", bookID, before.AvailableCopies, before.TotalCopies)
	fmt.Printf("Member   : %s\n", memberID)
	fmt.Printf("Requests : %d\n\n", requests)

	results := make([]loanResult, requests)
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			results[idx] = attemptLoan(serverAddr, token, bookID, memberID)
		}(i)
	}

	fmt.Println("Firing all requests simultaneously...")
	close(start)
	wg.Wait()
	fmt.Println("All requests completed.")

	byStatus := map[int]int{}
	var failures int
	for i, r := range results {
		if r.Err != nil {
			failures++
			fmt.Printf("  [ERR ] #%02d err=%v\n", i, r.Err)
			continue
		}
		byStatus[r.StatusCode]++
		fmt.Printf("  [%d] #%02d %s\n", r.StatusCode, i, r.Body)
	}
	issued := byStatus[http.StatusCreated]

	fmt.Printf("\n--- Summary ---\n")
	fmt.Printf("Issued (201)          : %d\n", issued)
	fmt.Printf("Quota exceeded (422)  : %d\n", byStatus[http.StatusUnprocessableEntity])
	fmt.Printf("Unavailable (409)     : %d\n", byStatus[http.StatusConflict])
	fmt.Printf("Retry exhausted (503) : %d\n", byStatus[http.StatusServiceUnavailable])
	fmt.Printf("Transport failures    : %d\n\n", failures)

	after, err := fetchBook(serverAddr, token, bookID)
	if err != nil {
		log.Fatalf("re-read book: %v", err)
	}

	fmt.Println("--- Invariant Check ---")
	ok := true
	if issued > memberQuota {
		ok = false
		fmt.Printf("[FAIL] %d loans issued, quota is %d\n", issued, memberQuota)
	}
	if before.AvailableCopies-after.AvailableCopies != issued {
		ok = false
		fmt.Printf("[FAIL] available_copies moved %d -> %d but %d loans were issued\n",
			before.AvailableCopies, after.AvailableCopies, issued)
	}
	if ok {
		fmt.Println("[ OK ] quota held and availability counter matches issued loans")
		return
	}
	os.Exit(1)
}

// attemptLoan sends POST /books/{bookID}/loans for memberID.
func attemptLoan(serverAddr, token, bookID, memberID string) loanResult {
	url := fmt.Sprintf("%s/books/%s/loans", serverAddr, bookID)
	body := fmt.Sprintf(`{"member_id":%s}`, memberID)

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBufferString(body))
	if err != nil {
		return loanResult{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return loanResult{Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	return loanResult{StatusCode: resp.StatusCode, Body: string(raw)}
}

func fetchBook(serverAddr, token, bookID string) (*bookCounters, error) {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/books/%s", serverAddr, bookID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET /books/%s: status %d", bookID, resp.StatusCode)
	}
	var counters bookCounters
	if err := json.NewDecoder(resp.Body).Decode(&counters); err != nil {
		return nil, err
	}
	return &counters, nil
}
