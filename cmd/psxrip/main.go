package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bgrewell/usage"
	"github.com/go-logr/logr"
	"github.com/theckman/yacspin"
	"golang.org/x/term"

	psx "github.com/psxtools/psx-kit"
	"github.com/psxtools/psx-kit/pkg/logging"
	"github.com/psxtools/psx-kit/pkg/options"
)

var version = "dev"

// truncateString truncates the input string to the specified max length.
// If truncation occurs, it prepends "..." to indicate the string has been shortened.
func truncateString(input string, maxLength int) string {
	if len(input) <= maxLength {
		return input
	}
	if maxLength <= 3 {
		return input[len(input)-maxLength:]
	}
	return "..." + input[len(input)-(maxLength-3):]
}

// createProgressCallback returns a ProgressCallback that updates the spinner's message.
func createProgressCallback(spinner *yacspin.Spinner) options.ProgressCallback {
	return func(currentFilename string, currentSector int64, totalSectors int64) {
		width, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil {
			width = 80
		}

		percent := float64(currentSector) / float64(totalSectors) * 100
		suffixPart := fmt.Sprintf(" - %.2f%%", percent)

		availableSpace := width - len(suffixPart) - 8
		if availableSpace < 10 {
			availableSpace = 10
		}

		spinner.Message(fmt.Sprintf(" %s%s", truncateString(currentFilename, availableSpace), suffixPart))
	}
}

func initializeSpinner() (*yacspin.Spinner, error) {
	settings := yacspin.Config{
		Frequency:         100 * time.Millisecond,
		ShowCursor:        false,
		SpinnerAtEnd:      false,
		CharSet:           yacspin.CharSets[14],
		Colors:            []string{"fgHiCyan"},
		StopColors:        []string{"fgHiGreen"},
		StopFailColors:    []string{"fgHiRed"},
		StopFailCharacter: "✗",
		StopCharacter:     "✓",
	}

	spinner, err := yacspin.New(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create spinner: %w", err)
	}
	if err := spinner.Start(); err != nil {
		return nil, fmt.Errorf("failed to start spinner: %w", err)
	}
	return spinner, nil
}

func main() {
	u := usage.NewUsage()
	help := u.AddBooleanOption("h", "help", false, "Show this help message", "optional", nil)
	verbose := u.AddBooleanOption("v", "verbose", false, "Print verbose output", "", nil)
	lbns := u.AddBooleanOption("l", "lbns", false, "Record the start LBN of every file in the catalog", "", nil)
	lbnTable := u.AddBooleanOption("t", "lbn-table", false, "Print the LBN table of the image and exit", "", nil)
	showVersion := u.AddBooleanOption("V", "version", false, "Display version information and exit", "", nil)
	imagePath := u.AddArgument(1, "image", "Path to the disc image (.bin or .cue)", "")
	outputDir := u.AddArgument(2, "output-dir", "Directory to extract into (defaults to the image name)", "")
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
		fmt.Println("psxrip " + version)
		os.Exit(0)
	}
	if imagePath == nil || *imagePath == "" {
		u.PrintError(fmt.Errorf("no image file specified"))
		os.Exit(1)
	}

	logger := logr.Discard()
	if *verbose {
		logger = logging.NewSimpleLogger(os.Stderr, logging.LEVEL_DEBUG, true)
	}
	opts := []options.Option{
		options.WithLogger(logger),
		options.WithLBNs(*lbns),
	}

	if *lbnTable {
		if err := psx.DumpLBNTable(*imagePath, os.Stdout, opts...); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	output := ""
	if outputDir != nil {
		output = *outputDir
	}
	if output == "" {
		base := filepath.Base(*imagePath)
		output = strings.TrimSuffix(base, filepath.Ext(base))
	}

	var spinner *yacspin.Spinner
	if !*verbose {
		var err error
		if spinner, err = initializeSpinner(); err == nil {
			opts = append(opts, options.WithProgress(createProgressCallback(spinner)))
		}
	}

	err := psx.Rip(*imagePath, output, opts...)

	if spinner != nil {
		if err != nil {
			spinner.StopFailMessage(fmt.Sprintf(" %v", err))
			spinner.StopFail()
		} else {
			spinner.StopMessage(fmt.Sprintf(" Wrote %s.cat", output))
			spinner.Stop()
		}
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if spinner == nil {
		fmt.Printf("Wrote %s.cat\n", output)
	}
}
