// Command mergebridge serves the pull request dashboard, API and GitHub
// webhook, and offers one-shot CLI helpers around the same services.
package main

import (
	"os"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
