package ir

// Version constants for the receiver and its journal schema.
const (
	// JournalVersion is the version of the inbound journal record layout.
	JournalVersion = "1"

	// EngineVersion is the lzrecv engine version.
	EngineVersion = "0.3.0"
)
