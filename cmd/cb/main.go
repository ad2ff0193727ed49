// Command cb is the command-line front door for the execution core: a
// switch-on-verb dispatcher in the same shape as ual's own CLI, driving
// pkg/interp and reporting its exit code.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/shadowlink0122/cb/pkg/version"
)

var debug bool

func main() {
	args := parseFlags(os.Args[1:])

	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	log := logrus.New()
	if debug {
		log.SetLevel(logrus.DebugLevel)
	}

	cmd := args[0]
	switch cmd {
	case "run", "r":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "error: no input file specified")
			os.Exit(1)
		}
		os.Exit(runFile(args[1], log))

	case "compile", "c":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "error: no input file specified")
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "error: this build has no lexer/parser front end wired in; compile requires an externally-built AST")
		os.Exit(1)

	case "version", "v":
		fmt.Printf("cb version %s\n", version.Version)

	case "help", "h":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func parseFlags(args []string) []string {
	var result []string
	for _, arg := range args {
		switch arg {
		case "-d", "--debug":
			debug = true
		case "--help", "-h":
			result = append(result, "help")
		case "--version":
			result = append(result, "version")
		default:
			result = append(result, arg)
		}
	}
	return result
}

func printUsage() {
	fmt.Println("cb - Cb language execution core")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  cb run <file.cb>       Run a program's pre-built AST")
	fmt.Println("  cb compile <file.cb>   Ahead-of-time compile (needs an external front end)")
	fmt.Println("  cb version             Show version")
	fmt.Println("  cb help                Show this help text")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  -d, --debug            Enable debug trace logging")
}
