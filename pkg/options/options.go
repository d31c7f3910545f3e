package options

import (
	"github.com/go-logr/logr"
)

// ProgressCallback defines the signature for progress update functions.
type ProgressCallback func(
	currentFilename string,
	currentSector int64,
	totalSectors int64,
)

// Options represents the options for building, reading, and ripping disc
// images.
type Options struct {
	WriteCueFile     bool
	WriteLBNs        bool
	Logger           logr.Logger
	ProgressCallback ProgressCallback
}

// Option represents a function that modifies the Options
type Option func(*Options)

// WithProgress sets a progress callback function that will be called with progress updates.
// Parameters:
// - currentFilename: The name of the file or item currently being processed.
// - currentSector: The sector being written or read.
// - totalSectors: The total number of sectors to process.
func WithProgress(callback ProgressCallback) Option {
	return func(o *Options) {
		o.ProgressCallback = callback
	}
}

// WithCueFile sets whether to write a cue sheet next to the image file.
func WithCueFile(enabled bool) Option {
	return func(o *Options) {
		o.WriteCueFile = enabled
	}
}

// WithLBNs sets whether ripped catalogs record the start LBN of every entry.
func WithLBNs(enabled bool) Option {
	return func(o *Options) {
		o.WriteLBNs = enabled
	}
}

// WithLogger sets the Logger for the operation
func WithLogger(logger logr.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}
