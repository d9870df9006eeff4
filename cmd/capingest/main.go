// Command capingest ingests CAP emergency alerts from the configured feed
// sources into PostgreSQL and notifies subscribers over Kafka.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
