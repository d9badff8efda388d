// Command basic is a local console for the BASIC interpreter.
//
//	basic [-f script] [-run] [-db library.db] [-config settings.cfg] [-log file [-log-areas a,b]]
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/antibyte/retrobasic/pkg/basic"
	"github.com/antibyte/retrobasic/pkg/configuration"
	"github.com/antibyte/retrobasic/pkg/console"
	"github.com/antibyte/retrobasic/pkg/logger"
	"github.com/antibyte/retrobasic/pkg/store"

	"github.com/peterh/liner"
	"golang.org/x/term"
)

const historyFile = ".retrobasic_history"

func main() {
	os.Exit(run())
}

func run() int {
	script := flag.String("f", "", "load a program before the first prompt")
	autorun := flag.Bool("run", false, "run the loaded program")
	dbPath := flag.String("db", "", "program library for SAVE, LOAD, FILES and ERASE")
	owner := flag.String("owner", "local", "library owner name")
	configPath := flag.String("config", "", "settings file for [Interpreter] and [Debug]")
	logPath := flag.String("log", "", "write a debug log to this file")
	logAreaList := flag.String("log-areas", "all", "comma separated areas for -log")
	flag.Parse()

	opts := console.Options{MaxLines: 1000, MaxSteps: 1000000}
	if *configPath != "" {
		if err := configuration.Initialize(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			return 1
		}
		opts = console.OptionsFromConfig()
		if err := logger.Initialize(); err != nil {
			fmt.Fprintf(os.Stderr, "logger: %v\n", err)
			return 1
		}
	}
	if *logPath != "" {
		if err := logger.InitializeWith(logger.Settings{Enabled: true, Level: logger.DEBUG, Path: *logPath}); err != nil {
			fmt.Fprintf(os.Stderr, "logger: %v\n", err)
			return 1
		}
		for _, a := range logAreas(*logAreaList) {
			logger.SetArea(a, true)
		}
	}
	defer logger.Close()

	var library console.Library
	if *dbPath != "" {
		db, err := store.Open(*dbPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "library: %v\n", err)
			return 1
		}
		defer db.Close()
		library = db
	}

	c := console.New(library, *owner, opts)
	defer c.Close()
	r := newRepl(c, os.Stdout)

	if *script != "" {
		f, err := os.Open(*script)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		n, err := basic.LoadProgram(c.Program(), f)
		f.Close()
		r.drain()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", *script, err)
			return 1
		}
		logger.Info(logger.AreaConsole, "Loaded %d lines from %s", n, *script)
		if *autorun && r.handle("RUN") {
			return 0
		}
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
	if !interactive {
		if err := r.runLines(os.Stdin); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		c.Wait()
		r.drain()
		return 0
	}

	fmt.Println("RETROBASIC")
	fmt.Println("READY.")

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)
	if f, err := os.Open(histPath); err == nil {
		ln.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			ln.WriteHistory(f)
			f.Close()
		}
	}()

	if err := r.runInteractive(ln); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// logAreas resolves a -log-areas value. Unknown names are skipped.
func logAreas(list string) []logger.LogArea {
	if list == "all" {
		return logger.ListAreas()
	}
	known := make(map[string]logger.LogArea)
	for _, a := range logger.ListAreas() {
		known[string(a)] = a
	}
	var out []logger.LogArea
	for _, name := range strings.Split(list, ",") {
		if a, ok := known[strings.ToLower(strings.TrimSpace(name))]; ok {
			out = append(out, a)
		}
	}
	return out
}
