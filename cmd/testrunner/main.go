package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Dawn-of-Light/DOLSharp-sub031/test"
)

func main() {
	serverAddr := flag.String("addr", "localhost:4480", "questd gateway address")
	token := flag.String("token", "", "Gateway token, if questd requires one")
	filter := flag.String("run", "", "Only run tests whose name contains this string")
	list := flag.Bool("list", false, "List available tests and exit")
	verbose := flag.Bool("v", false, "Verbose output - show detailed actions for each test")
	flag.Parse()

	if *list {
		for _, name := range test.GetTestNames() {
			fmt.Println(name)
		}
		return
	}

	// Set verbose mode
	test.Verbose = *verbose
	test.Token = *token

	fmt.Printf("Running integration tests against %s\n", *serverAddr)
	fmt.Println("Make sure questd is running with the content in data/content!")
	if *verbose {
		fmt.Println("Verbose mode enabled - showing detailed test actions")
	}
	fmt.Println()

	var results []test.TestResult
	if *filter != "" {
		results = test.RunFilteredTests(*serverAddr, *filter)
	} else {
		results = test.RunAllTests(*serverAddr)
	}
	test.PrintResults(results)

	// Exit with error code if any tests failed
	for _, result := range results {
		if !result.Passed {
			os.Exit(1)
		}
	}
}
