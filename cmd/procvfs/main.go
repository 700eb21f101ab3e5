// Command procvfs loads the module registry and exposes the virtual file
// system on the command line or over HTTP.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
