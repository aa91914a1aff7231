// Command pdftools compresses, merges, splits, watermarks and protects PDF documents.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Lllllllleong/pdftools/internal/cli"
)

func main() {
	if err := cli.New().Execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
