// synthctl controls a running synthd over its HTTP API.
//
// The daemon address comes from --server, then SYNTHD_API, then
// http://127.0.0.1:8570.
package main

import (
	"fmt"
	"os"
)

func main() {
	root := newRootCmd()

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
