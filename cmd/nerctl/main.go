package main

import (
	"os"

	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
