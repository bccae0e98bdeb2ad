// Package inspect implements the filesystem inspection operations behind
// the TRAVERSE, SEARCH and INSPECT commands: recursive directory walks,
// content substring scans and raw file streaming.
//
// Responses are framed as plain text terminated by Terminator, so a client
// reads lines until it sees the marker. The one exception is INSPECT, which
// streams raw file bytes before the marker.
package inspect

// Terminator marks the end of a framed response on the wire.
const Terminator = "<<END>>\n"

// chunkSize is the read/write buffer size for file streaming.
const chunkSize = 4096

// Wire literals shared by the walk, scan and stream operations. Clients
// match on these exact strings.
const (
	DirectoryPrefix = "Directory: "
	FilePrefix      = "File: "

	MatchedFilesHeader = "\nMatched Files:\n"
	NoMatchesReply     = "\nNo matches found\n"

	ErrCannotOpenFile      = "ERROR: Cannot open file\n"
	ErrCannotOpenDirPrefix = "ERROR: Cannot open directory: "
)
