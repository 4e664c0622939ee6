package main

var (
	// Version is the version of the binary.
	Version string
	// BuildDate is the date when the binary was built.
	BuildDate string
	// GitCommit is the commit hash that built the binary.
	GitCommit string
)
