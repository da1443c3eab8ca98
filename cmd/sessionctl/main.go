// Command sessionctl logs in against an identity provider, keeps the session in a token store
// and sends authenticated requests through the session client.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
