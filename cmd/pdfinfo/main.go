// pdfinfo prints the version, page count and page dimensions of PDF files,
// such as those written by webkittool.
//
// Usage:
//
//	pdfinfo <file.pdf>...
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fjoachim/go-site-capture/internal/pdfinfo"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 1
	}
	switch args[0] {
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	}

	status := 0
	for i, path := range args {
		if i > 0 {
			fmt.Fprintln(stdout)
		}
		if err := runInfo(stdout, path); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			status = 1
		}
	}
	return status
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `pdfinfo - PDF page inspection tool

Usage:
  pdfinfo <file.pdf>...

Prints the PDF version, the page count and the size of every page in points.
`)
}

func runInfo(w io.Writer, inputFile string) error {
	doc, err := pdfinfo.Open(inputFile)
	if err != nil {
		return fmt.Errorf("opening %s: %w", inputFile, err)
	}

	pages, err := doc.Pages()
	if err != nil {
		return fmt.Errorf("reading pages of %s: %w", inputFile, err)
	}

	fmt.Fprintf(w, "File:    %s\n", inputFile)
	fmt.Fprintf(w, "Version: PDF-%s\n", doc.Version())
	fmt.Fprintf(w, "Pages:   %d\n", len(pages))

	if len(pages) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Page dimensions:")
		for i, page := range pages {
			fmt.Fprintf(w, "  Page %d: %.0f x %.0f pt", i+1, page.Width, page.Height)
			if page.Rotation != 0 {
				fmt.Fprintf(w, " (rotated %d°)", page.Rotation)
			}
			fmt.Fprintln(w)
		}
	}

	return nil
}
