package main

import (
	"flag"
	"fmt"
	"os"
)

func runUpgrade(name string, args []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	server := fs.String("server", defaultServer, "base URL of the upgraded daemon")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: upgradectl %s [flags] <device-id>\n", name)
		os.Exit(2)
	}

	mode := "execute"
	if name == "plan" {
		mode = "plan_only"
	}

	body := map[string]string{"mode": mode}
	data, err := newClient(*server).post("/api/v1/devices/"+fs.Arg(0)+"/upgrade", body)
	if err != nil {
		fail(err)
	}
	printJSON(data)
}

func runRollback(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	server := fs.String("server", defaultServer, "base URL of the upgraded daemon")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: upgradectl rollback [flags] <device-id>")
		os.Exit(2)
	}

	data, err := newClient(*server).post("/api/v1/devices/"+fs.Arg(0)+"/rollback", nil)
	if err != nil {
		fail(err)
	}
	printJSON(data)
}
