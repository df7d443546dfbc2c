package main

import (
	"flag"
	"fmt"
	"os"
)

func runHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	server := fs.String("server", defaultServer, "base URL of the upgraded daemon")
	limit := fs.Int("limit", 20, "maximum number of attempts to show")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: upgradectl history [flags] <device-id>")
		os.Exit(2)
	}

	path := fmt.Sprintf("/api/v1/devices/%s/upgrades?limit=%d", fs.Arg(0), *limit)
	data, err := newClient(*server).get(path)
	if err != nil {
		fail(err)
	}
	printJSON(data)
}

func runEvents(args []string) {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	server := fs.String("server", defaultServer, "base URL of the upgraded daemon")
	limit := fs.Int("limit", 50, "maximum number of events to show")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: upgradectl events [flags] <device-id>")
		os.Exit(2)
	}

	path := fmt.Sprintf("/api/v1/devices/%s/events?limit=%d", fs.Arg(0), *limit)
	data, err := newClient(*server).get(path)
	if err != nil {
		fail(err)
	}
	printJSON(data)
}
