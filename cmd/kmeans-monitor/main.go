// Command kmeans-monitor follows the progress stream of a distributed kmeans
// run in the terminal.
//
//	kmeans-monitor [-transport nng|zmq] <progress_address>
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dd0wney/cluso-kmeans/pkg/collective"
	"github.com/dd0wney/cluso-kmeans/pkg/validation"
)

func main() {
	transport := flag.String("transport", collective.TransportNNG, "Transport of the progress stream: nng or zmq")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: kmeans-monitor [flags] <progress_address>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	address := flag.Arg(0)
	if err := validation.ValidateAddress(address); err != nil {
		log.Fatalf("Invalid progress address: %v", err)
	}

	factory, err := collective.NewSocketFactory(*transport)
	if err != nil {
		log.Fatalf("Failed to create socket factory: %v", err)
	}
	sub, err := collective.SubscribeProgress(factory, address)
	if err != nil {
		log.Fatalf("Failed to subscribe: %v", err)
	}
	defer sub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := tea.NewProgram(initialModel(ctx, sub, address), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("Error running program: %v", err)
	}
}
