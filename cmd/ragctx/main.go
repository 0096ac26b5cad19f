// Command ragctx is the entry point for the RAG context pipeline.
// It ingests documents into a vector store and assembles prompt-ready
// context for user queries, from the CLI or over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/ragctx-go/cmd/ragctx/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
