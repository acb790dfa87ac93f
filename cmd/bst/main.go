// Command bst is BuildStream's command-line frontend: it
// loads a project's element graph and drives the fetch/build/push pipeline
// over it through internal/scheduler, internal/sandbox, and internal/cas.
package main

import "os"

func main() {
	if err := Root.Execute(); err != nil {
		os.Exit(1)
	}
}
