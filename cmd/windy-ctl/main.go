package main

import (
	"fmt"
	"os"
	"time"

	cli "github.com/spf13/pflag"

	"windy/internal/ipc"
)

func main() {
	socket := cli.StringP("socket", "s", ipc.DefaultSocketPath, "Control socket path")
	timeout := cli.DurationP("timeout", "t", 3*time.Second, "Reply timeout")
	cli.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: windy-ctl [flags] shutdown|sleep|wake|status\n")
		cli.PrintDefaults()
	}
	cli.Parse()

	if cli.NArg() != 1 {
		cli.Usage()
		os.Exit(2)
	}

	cmd := ipc.Command(cli.Arg(0))
	if !cmd.Valid() {
		fmt.Fprintln(os.Stderr, "unknown command:", cmd)
		os.Exit(2)
	}

	reply, err := ipc.Send(*socket, cmd, *timeout)
	if err != nil {
		fmt.Println("windy not running:", err)
		os.Exit(1)
	}
	if !reply.OK {
		fmt.Println("error:", reply.Error)
		os.Exit(1)
	}

	fmt.Println(reply.State)
}
