package domain

import "time"

// CacheEntry records a published output of a cached operation.
type CacheEntry struct {
	Operation    string    `json:"operation"`
	Version      int       `json:"version"`
	Fingerprints []string  `json:"fingerprints"`
	Output       string    `json:"output"`
	Extras       []string  `json:"extras,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitzero"`
}

// Operation identifies a cached operation and the file name of its output.
type Operation struct {
	// Key names the operation, for example "remap" or "decompile".
	Key string
	// Version invalidates every earlier output of Key when bumped.
	Version int
	// Output is the file name the producer writes inside its private directory.
	Output string
	// Params are folded into the key digest alongside the input fingerprints.
	Params []string
}

// CacheResult is the outcome of a cached operation.
type CacheResult struct {
	Path string
	// Extras are the other files the producer left next to its output,
	// in lexical order.
	Extras []string
	Hit    bool
}
