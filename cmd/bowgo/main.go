// Package main is the entry point for the bowgo CLI.
//
// Usage:
//
//	bowgo [flags] <command> [args]
//
// Commands:
//
//	index    - Index keyframe descriptor files into a snapshot
//	query    - Retrieve the keyframes closest to a frame
//	match    - Match a frame against a keyframe
//	suppress - Remove keyframes from the snapshot
//	stats    - Show snapshot statistics
//	publish  - Publish the local snapshot to object storage
//	fetch    - Fetch a published snapshot into the local snapshot path
package main

import (
	"fmt"
	"os"

	"github.com/hupe1980/bowgo/cmd/bowgo/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
