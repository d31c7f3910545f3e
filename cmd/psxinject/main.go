package main

import (
	"fmt"
	"os"

	"github.com/bgrewell/usage"
	"github.com/go-logr/logr"

	psx "github.com/psxtools/psx-kit"
	"github.com/psxtools/psx-kit/pkg/logging"
	"github.com/psxtools/psx-kit/pkg/options"
)

var version = "dev"

func main() {
	u := usage.NewUsage()
	help := u.AddBooleanOption("h", "help", false, "Show this help message", "optional", nil)
	verbose := u.AddBooleanOption("v", "verbose", false, "Print verbose output", "", nil)
	showVersion := u.AddBooleanOption("V", "version", false, "Display version information and exit", "", nil)
	imagePath := u.AddArgument(1, "image", "Path to the disc image (.bin or .cue)", "")
	filePath := u.AddArgument(2, "file-path", "Path of the file to replace within the image", "")
	newFile := u.AddArgument(3, "new-file", "Host file holding the replacement data", "")
	parsed := u.Parse()

	if !parsed {
		u.PrintError(fmt.Errorf("failed to parse arguments"))
		os.Exit(1)
	}
	if *help {
		u.PrintUsage()
		os.Exit(0)
	}
	if *showVersion {
		fmt.Println("psxinject " + version)
		os.Exit(0)
	}
	if imagePath == nil || *imagePath == "" {
		u.PrintError(fmt.Errorf("no image file specified"))
		os.Exit(1)
	}
	if filePath == nil || *filePath == "" {
		u.PrintError(fmt.Errorf("no file path within the image specified"))
		os.Exit(1)
	}
	if newFile == nil || *newFile == "" {
		u.PrintError(fmt.Errorf("no replacement file specified"))
		os.Exit(1)
	}

	logger := logr.Discard()
	if *verbose {
		logger = logging.NewSimpleLogger(os.Stderr, logging.LEVEL_DEBUG, true)
	}

	err := psx.Inject(*imagePath, *filePath, *newFile, options.WithLogger(logger))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("Replaced %s in %s\n", *filePath, *imagePath)
}
