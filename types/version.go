package types

// Version is the canonical project version.
// The CLI, ledger record schema, and scratch journal share this version.
const Version = "0.3.0"
