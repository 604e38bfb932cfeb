// Package test holds integration scenarios run by cmd/testrunner against a
// live questd serving the content in data/content.
package test

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Dawn-of-Light/DOLSharp-sub031/internal/testclient"
)

// uniqueCounter provides unique IDs for test players within a single run
var uniqueCounter uint64

// runID keeps player ids from colliding with records persisted by earlier runs
var runID = time.Now().Unix()

// uniqueName generates a player id that is unique across runs
func uniqueName(base string) string {
	counter := atomic.AddUint64(&uniqueCounter, 1)
	return fmt.Sprintf("%s-%d-%d", base, runID, counter)
}

// Verbose controls whether detailed logging is shown during tests
var Verbose = false

// Token is the gateway token presented by every test client
var Token = ""

// TestResult represents the result of a test
type TestResult struct {
	Name    string
	Passed  bool
	Message string
}

// logAction logs a test action when verbose mode is enabled
func logAction(testName, action string) {
	if Verbose {
		fmt.Printf("  [%s] %s\n", testName, action)
	}
}

// logResult logs an expected vs actual result when verbose mode is enabled
func logResult(testName string, success bool, detail string) {
	if Verbose {
		status := "OK"
		if !success {
			status = "FAIL"
		}
		fmt.Printf("  [%s] %s: %s\n", testName, status, detail)
	}
}

func fail(name, format string, args ...any) TestResult {
	return TestResult{Name: name, Passed: false, Message: fmt.Sprintf(format, args...)}
}

func pass(name, message string) TestResult {
	return TestResult{Name: name, Passed: true, Message: message}
}

// connect opens a client and registers one player on it
func connect(serverAddr, testName, base string, level int, class string) (*testclient.TestClient, string, error) {
	player := uniqueName(base)
	client, err := testclient.NewTestClient(testName, serverAddr, Token)
	if err != nil {
		return nil, "", err
	}
	if err := client.RegisterPlayer(player, level, class); err != nil {
		client.Close()
		return nil, "", fmt.Errorf("failed to register player: %w", err)
	}
	logAction(testName, fmt.Sprintf("Registered %s (level %d %s)", player, level, class))
	return client, player, nil
}

// =============================================================================
// Test Runner
// =============================================================================

// testEntry holds a test function and its name
type testEntry struct {
	Name string
	Func func(string) TestResult
}

// getAllTests returns all test entries in order
func getAllTests() []testEntry {
	return []testEntry{
		// Group 1: Gateway
		{"Gateway Connection", TestGatewayConnection},
		{"Invalid Event Rejected", TestInvalidEventRejected},

		// Group 2: Quest flow
		{"Quest Offer", TestQuestOffer},
		{"Accept Quest", TestAcceptQuest},
		{"Reward Choice", TestRewardChoice},
		{"Qualification Silent", TestQualificationSilent},
		{"Scout Quest", TestScoutQuest},
		{"Abandon Quest", TestAbandonQuest},

		// Group 3: Actions
		{"Failed Toll", TestFailedToll},
	}
}

// RunAllTests runs all integration tests
func RunAllTests(serverAddr string) []TestResult {
	results := make([]TestResult, 0)
	for _, t := range getAllTests() {
		results = append(results, t.Func(serverAddr))
	}
	return results
}

// GetTestNames returns the names of all available tests
func GetTestNames() []string {
	tests := getAllTests()
	names := make([]string, len(tests))
	for i, t := range tests {
		names[i] = t.Name
	}
	return names
}

// RunFilteredTests runs only tests whose names contain the filter string (case-insensitive)
func RunFilteredTests(serverAddr string, filter string) []TestResult {
	results := make([]TestResult, 0)
	filterLower := strings.ToLower(filter)

	for _, t := range getAllTests() {
		if strings.Contains(strings.ToLower(t.Name), filterLower) {
			results = append(results, t.Func(serverAddr))
		}
	}

	return results
}

// PrintResults prints all test results in a formatted way
func PrintResults(results []TestResult) {
	passed := 0
	failed := 0

	fmt.Println("============================================================")
	fmt.Println("Integration Test Results")
	fmt.Println("============================================================")
	fmt.Println()

	for _, r := range results {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
			failed++
		} else {
			passed++
		}
		fmt.Printf("[%s] %s: %s\n", status, r.Name, r.Message)
	}

	fmt.Println()
	fmt.Println("------------------------------------------------------------")
	fmt.Printf("Total: %d | Passed: %d | Failed: %d\n", len(results), passed, failed)
	fmt.Println("------------------------------------------------------------")
}
