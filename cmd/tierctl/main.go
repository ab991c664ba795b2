// Command tierctl inspects and maintains a tierstore database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `tierctl - two-tier key-value store maintenance

Usage:
  tierctl <command> [options] [args]

Commands:
  get <key>            Print a record
  put <key> <value>    Write a record through both tiers
  del <key>            Remove a record
  has <key>            Report whether a record exists
  seq <name>           Issue the next value of a sequence (-current to peek)
  recover              Warm the cache from one namespace and report the count
  sweep                Run maintenance (expiry sweep + store flush)
  help                 Show this help

Common options:
  -backend sqlite|redis   Durable store (default sqlite)
  -db PATH                SQLite file (default $TIERSTORE_DB_PATH or default.db)
  -redis ADDR             Redis address for -backend redis
  -cache memory|ristretto|bigcache
  -log zap|logrus|slog|none
  -ns NAME                Namespace (default: root)

Examples:
  tierctl put -ns User 42 '{"name":"ada"}'
  tierctl get -ns User 42
  tierctl seq orders`)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}
	cmd, rest := args[0], args[1:]
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage(stdout)
		return 0
	}

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var o options
	o.register(fs)
	current := fs.Bool("current", false, "seq: print the current value without incrementing")
	if err := fs.Parse(rest); err != nil {
		return 2
	}
	pos := fs.Args()

	need := map[string]int{"get": 1, "put": 2, "del": 1, "has": 1, "seq": 1, "recover": 0, "sweep": 0}
	n, known := need[cmd]
	if !known {
		fmt.Fprintf(stderr, "Unknown command: %s\n", cmd)
		printUsage(stderr)
		return 1
	}
	if len(pos) != n {
		fmt.Fprintf(stderr, "Error: %s takes %d argument(s), got %d\n", cmd, n, len(pos))
		return 1
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	s, err := o.open(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to open store: %v\n", err)
		return 1
	}
	defer func() {
		if err := s.Close(context.Background()); err != nil {
			fmt.Fprintf(stderr, "close: %v\n", err)
		}
		o.close()
	}()

	switch cmd {
	case "get":
		v, ok, err := s.Get(ctx, o.ns, pos[0])
		if err != nil {
			return fail(stderr, err)
		}
		if !ok {
			fmt.Fprintln(stderr, "not found")
			return 3
		}
		fmt.Fprintf(stdout, "%s\n", v)
	case "put":
		if err := s.Insert(ctx, o.ns, pos[0], []byte(pos[1])); err != nil {
			return fail(stderr, err)
		}
	case "del":
		if err := s.Remove(ctx, o.ns, pos[0]); err != nil {
			return fail(stderr, err)
		}
	case "has":
		ok, err := s.Contains(ctx, o.ns, pos[0])
		if err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintln(stdout, strconv.FormatBool(ok))
	case "seq":
		var v uint32
		if *current {
			v, err = s.Current(ctx, pos[0])
		} else {
			v, err = s.Next(ctx, pos[0])
		}
		if err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintln(stdout, v)
	case "recover":
		added, err := s.Recover(ctx, o.ns)
		if err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintf(stdout, "recovered %d record(s)\n", added)
	case "sweep":
		start := time.Now()
		if err := s.RunMaintenance(ctx); err != nil {
			return fail(stderr, err)
		}
		st := s.Stats()
		fmt.Fprintf(stdout, "maintenance done in %s (reconciled %d, skipped %d)\n",
			time.Since(start).Round(time.Millisecond), st.Reconciled, st.Skipped)
	}
	return 0
}

func fail(w io.Writer, err error) int {
	fmt.Fprintf(w, "Error: %v\n", err)
	if errors.Is(err, context.DeadlineExceeded) {
		return 4
	}
	return 1
}
