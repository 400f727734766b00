// Command reactorkv-server runs the ReactorKV TCP server.
//
// Author grounding: original_source/src/server/main.cpp (flag set,
// signal handler doing only the async-signal-safe loop.quit(), data save
// deferred until after loop.loop() returns).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Lucky-mi/reactorkv/kvserver"
	"github.com/Lucky-mi/reactorkv/reactor"
)

const defaultMaxLevel = 16

func main() {
	port := flag.Int("port", 6379, "server port")
	flag.IntVar(port, "p", 6379, "server port (shorthand)")
	threads := flag.Int("threads", 4, "IO threads")
	flag.IntVar(threads, "t", 4, "IO threads (shorthand)")
	dataFile := flag.String("data", "data.db", "data file path")
	flag.StringVar(dataFile, "d", "data.db", "data file path (shorthand)")
	flag.Parse()

	fmt.Println("========================================")
	fmt.Println("        ReactorKV Server v1.0")
	fmt.Println("========================================")
	fmt.Printf("  Port:      %d\n", *port)
	fmt.Printf("  Threads:   %d\n", *threads)
	fmt.Printf("  Data File: %s\n", *dataFile)
	fmt.Println("========================================")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	loop, err := reactor.NewEventLoop()
	if err != nil {
		log.Fatalf("reactorkv-server: %v", err)
	}

	addr := reactor.NewInetAddress(uint16(*port), false)
	server, err := kvserver.New(loop, addr, "ReactorKV", defaultMaxLevel)
	if err != nil {
		log.Fatalf("reactorkv-server: %v", err)
	}
	server.SetNumLoops(*threads)

	if *dataFile != "" {
		if err := server.LoadData(*dataFile); err != nil {
			log.Printf("reactorkv-server: no existing data file, starting fresh: %v", err)
		} else {
			log.Printf("reactorkv-server: loaded %d keys from %s", server.Store().Size(), *dataFile)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	signal.Ignore(syscall.SIGPIPE)
	go func() {
		<-sigCh
		// Only the async-signal-safe quit: flip the flag and wake the
		// loop. Saving happens after Run returns, on the main goroutine.
		loop.Quit()
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("reactorkv-server: %v", err)
	}

	loop.Run()
	server.Stop()
	loop.Close()

	fmt.Println()
	fmt.Println("Shutting down...")
	if *dataFile != "" {
		if err := server.SaveData(*dataFile); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to save data: %v\n", err)
		} else {
			fmt.Printf("Data saved to %s\n", *dataFile)
		}
	}
	fmt.Println("Server stopped.")
}
