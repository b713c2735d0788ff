//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

var Default = Build

const binDir = "bin"

// Target is one buildable binary: a Lambda function or a local tool.
type Target struct {
	Name   string
	Path   string
	Lambda bool
}

// Build compiles every Lambda function to bin/<name>/bootstrap for the
// provided.al2023 arm64 runtime.
func Build() error {
	mg.Deps(ModTidy)

	targets, err := findTargets(true)
	if err != nil {
		return fmt.Errorf("failed to find Lambda functions: %w", err)
	}
	if len(targets) == 0 {
		fmt.Println("No Lambda functions found to build")
		return nil
	}

	fmt.Printf("Building %d Lambda function(s)...\n", len(targets))
	return buildAll(targets, min(runtime.NumCPU(), len(targets)))
}

// BuildTools compiles the local command line tools for the host platform.
func BuildTools() error {
	targets, err := findTargets(false)
	if err != nil {
		return fmt.Errorf("failed to find tools: %w", err)
	}
	return buildAll(targets, min(runtime.NumCPU(), max(len(targets), 1)))
}

func buildAll(targets []Target, workers int) error {
	queue := make(chan Target, len(targets))
	results := make(chan error, len(targets))

	for i := 0; i < workers; i++ {
		go buildWorker(i, queue, results)
	}
	for _, t := range targets {
		queue <- t
	}
	close(queue)

	var failed []error
	for range targets {
		if err := <-results; err != nil {
			failed = append(failed, err)
		}
	}

	if len(failed) > 0 {
		for _, err := range failed {
			fmt.Printf("  - %s\n", err)
		}
		return fmt.Errorf("build failed with %d errors", len(failed))
	}
	fmt.Printf("Built %d target(s)\n", len(targets))
	return nil
}

func buildWorker(id int, queue <-chan Target, results chan<- error) {
	for t := range queue {
		start := time.Now()
		if err := buildTarget(t); err != nil {
			fmt.Printf("Worker %d: failed to build %s (%v)\n", id, t.Name, time.Since(start))
			results <- fmt.Errorf("failed to build %s: %w", t.Name, err)
			continue
		}
		fmt.Printf("Worker %d: built %s (%v)\n", id, t.Name, time.Since(start))
		results <- nil
	}
}

func buildTarget(t Target) error {
	env := map[string]string{"CGO_ENABLED": "0"}
	output := filepath.Join(binDir, t.Name)
	tags := ""

	if t.Lambda {
		env["GOOS"] = "linux"
		env["GOARCH"] = "arm64"
		output = filepath.Join(binDir, t.Name, "bootstrap")
		tags = "lambda.norpc"
	}

	args := []string{
		"build",
		"-ldflags", "-s -w -buildid=",
		"-trimpath",
		"-buildvcs=false",
	}
	if tags != "" {
		args = append(args, "-tags", tags)
	}
	args = append(args, "-o", output, "./"+t.Path)

	return sh.RunWith(env, "go", args...)
}

// findTargets walks src for main packages. Lambda functions live under a
// lambda/ directory, tools under cli/.
func findTargets(lambdas bool) ([]Target, error) {
	var targets []Target

	err := filepath.Walk("src", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && strings.HasPrefix(info.Name(), ".") {
			return filepath.SkipDir
		}
		if info.Name() != "main.go" {
			return nil
		}

		dir := filepath.Dir(path)
		slashed := filepath.ToSlash(dir)
		isLambda := strings.Contains(slashed, "/lambda/")
		isTool := strings.Contains(slashed, "/cli/")

		if (lambdas && isLambda) || (!lambdas && isTool) {
			targets = append(targets, Target{Name: filepath.Base(dir), Path: slashed, Lambda: isLambda})
		}
		return nil
	})

	return targets, err
}

// Package zips each built Lambda bootstrap for deployment.
func Package() error {
	mg.Deps(Build)

	targets, err := findTargets(true)
	if err != nil {
		return err
	}
	for _, t := range targets {
		dir := filepath.Join(binDir, t.Name)
		if err := sh.Run("zip", "-j", filepath.Join(binDir, t.Name+".zip"), filepath.Join(dir, "bootstrap")); err != nil {
			return fmt.Errorf("failed to package %s: %w", t.Name, err)
		}
	}
	return nil
}

// Test runs all unit tests with race detection and coverage.
func Test() error {
	fmt.Println("Running unit tests...")
	return runTestWithArgs([]string{
		"test",
		"-race",
		"-timeout", "5m",
		"-coverprofile=coverage.out",
		"-covermode=atomic",
		"./src/...",
	})
}

// TestShort runs the unit tests in short mode without coverage.
func TestShort() error {
	return runTestWithArgs([]string{"test", "-short", "-timeout", "2m", "./src/..."})
}

func runTestWithArgs(args []string) error {
	return sh.RunWith(map[string]string{"CGO_ENABLED": "1"}, "go", args...)
}

// Lint runs golangci-lint, installing it when missing.
func Lint() error {
	fmt.Println("Running linters...")

	if err := sh.Run("golangci-lint", "--version"); err != nil {
		fmt.Println("Installing golangci-lint...")
		if err := sh.Run("go", "install", "github.com/golangci/golangci-lint/cmd/golangci-lint@latest"); err != nil {
			return fmt.Errorf("failed to install golangci-lint: %w", err)
		}
		return sh.Run(filepath.Join(os.Getenv("GOPATH"), "bin", "golangci-lint"), "run", "./...")
	}
	return sh.Run("golangci-lint", "run", "./...")
}

// ModTidy runs go mod tidy on the root module.
func ModTidy() error {
	return sh.Run("go", "mod", "tidy")
}

// Clean removes build output and coverage files.
func Clean() error {
	fmt.Println("Cleaning build artifacts...")
	for _, path := range []string{binDir, "coverage.out"} {
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	return nil
}

// CI runs every check in order.
func CI() {
	mg.SerialDeps(Clean, ModTidy, Lint, Test, Build)
}
