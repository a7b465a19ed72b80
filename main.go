package main

import (
	"github.com/andrefsp/video-democry/cmd"
	"github.com/andrefsp/video-democry/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	cmd.Execute()
}
