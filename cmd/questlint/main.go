// Command questlint validates a quest content directory and prints a report.
package main

import (
	"flag"
	"fmt"
	"os"
)

func main() {
	strict := flag.Bool("strict", false, "Treat warnings as errors")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: questlint [-strict] <content-dir>...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	dirs := flag.Args()
	if len(dirs) == 0 {
		dirs = []string{"data/content"}
	}

	exit := 0
	for _, dir := range dirs {
		res := lint(dir)
		render(os.Stdout, res)
		if res.failed(*strict) {
			exit = 1
		}
	}
	os.Exit(exit)
}
