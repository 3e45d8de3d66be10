package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// startServer is a variable to allow replacing it in tests.
var startServer = runServer

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return startServer(stdout, stderr)
	}

	cmd, rest := args[1], args[2:]
	if cmd != "serve" && cmd != "server" {
		// Tool commands keep stdout for their output.
		slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	}

	switch cmd {
	case "serve", "server":
		return startServer(stdout, stderr)
	case "resolve":
		return runResolveCmd(rest, stdout, stderr)
	case "render":
		return runRenderCmd(rest, stdout, stderr)
	case "legend":
		return runLegendCmd(rest, stdout, stderr)
	case "harvest":
		return runHarvestCmd(rest, stdout, stderr)
	case "merge":
		return runMergeCmd(rest, stdout, stderr)
	case "actions":
		return runActionsCmd(rest, stdout, stderr)
	case "hash-password":
		return runHashPasswordCmd(rest, os.Stdin, stdout, stderr)
	case "version", "--version":
		fmt.Fprintf(stdout, "riskmap %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if strings.HasPrefix(cmd, "-") {
			return startServer(stdout, stderr)
		}
		fmt.Fprintf(stderr, "Unknown command: %s\n", cmd)
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "riskmap %s\n", version)
	fmt.Fprintln(w, "Sanctions risk map server and tools.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  riskmap <command> [flags]")
	fmt.Fprintln(w, "")

	printSection(w, "SERVER")
	printCommand(w, "serve", "Run the map API server (default)")

	printSection(w, "DATA")
	printCommand(w, "resolve", "Resolve one country (--risk, --code, --jurisdiction, --subcategory, --json)")
	printCommand(w, "render", "Write styled GeoJSON (--shapes, --risk, --metrics, --profile, --out)")
	printCommand(w, "legend", "Print the legend of a style profile (--profile, --json)")
	printCommand(w, "harvest", "Collect sanctions program metrics (--index, --out)")
	printCommand(w, "merge", "Join program metrics into a risk file (--risk, --metrics, --shapes, --out)")
	printCommand(w, "actions", "Summarize recent sanctions actions (--url, --keywords, --out, --at)")

	printSection(w, "UTILITIES")
	printCommand(w, "hash-password", "Print a bcrypt hash for ADMIN_PASS_HASH")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "%s:\n", title)
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %-14s %s\n", name, desc)
}
