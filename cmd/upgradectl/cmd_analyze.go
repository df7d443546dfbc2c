package main

import (
	"flag"
	"fmt"
	"os"
)

func runDevices(args []string) {
	fs := flag.NewFlagSet("devices", flag.ExitOnError)
	server := fs.String("server", defaultServer, "base URL of the upgraded daemon")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	data, err := newClient(*server).get("/api/v1/devices")
	if err != nil {
		fail(err)
	}
	printJSON(data)
}

func runAnalyze(args []string) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	server := fs.String("server", defaultServer, "base URL of the upgraded daemon")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: upgradectl analyze [flags] <device-id>")
		os.Exit(2)
	}

	data, err := newClient(*server).post("/api/v1/devices/"+fs.Arg(0)+"/analyze", nil)
	if err != nil {
		fail(err)
	}
	printJSON(data)
}
