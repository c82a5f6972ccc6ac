package main

import (
	"os"

	"github.com/CS-5/VoiceTimeBot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
