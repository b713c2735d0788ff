// Package main is alarm-replay, a local tool that runs a saved alarm event
// through the same pipeline as the Lambda function.
package main

import (
	"context"
	"os"
)

func main() {
	os.Exit(Run(context.Background(), os.Args[1:], Dependencies{}))
}
