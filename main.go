// Command icloudpd-go downloads and keeps a local mirror of an iCloud
// Photos library: one-shot or continuous, resuming partial transfers and
// skipping what has already been fetched.
package main

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitOnError(err)
	}
}
