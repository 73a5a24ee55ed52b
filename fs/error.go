package fs

import "errors"

// Sentinel errors returned by the backends.
var (
	// ErrorObjectNotFound is returned when the object being looked
	// up (a file) doesn't exist.
	ErrorObjectNotFound = errors.New("object not found")

	// ErrorDirNotFound is returned when the directory being looked
	// up (including the configured root) doesn't exist.
	ErrorDirNotFound = errors.New("directory not found")

	// ErrorIsFile is returned when a directory operation finds a file
	ErrorIsFile = errors.New("is a file not a directory")

	// ErrorIsDir is returned when a file operation finds a directory
	ErrorIsDir = errors.New("is a directory not a file")

	// ErrorParse is returned when a response body was expected to be
	// JSON of a particular shape but was missing or malformed.
	ErrorParse = errors.New("couldn't parse response")
)
