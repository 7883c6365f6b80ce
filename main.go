package main

import (
	"flag"
	"fmt"
	"log"
	"os"
)

// Build details set with ldflags.
var (
	GitCommit string
	GitTag    string
	BuildTime string
)

// @title        Book Catalog API
// @version      1.0
// @description  Books catalog service with search, filtering and statistics.
// @BasePath     /
func main() {
	version := flag.Bool("version", false, "print build details and exit")
	flag.Parse()
	if *version {
		fmt.Fprintf(os.Stdout, "book-catalog tag=%s commit=%s built=%s\n", GitTag, GitCommit, BuildTime)
		return
	}

	app, err := NewApp()
	if err != nil {
		log.Fatal("application failed to initialized: ", err)
	}
	if err = app.Run(); err != nil {
		log.Fatal("application exited. check logs for more details. ", err)
	}
}
