package main

import (
	"os"

	"github.com/victornm/quizinho/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
