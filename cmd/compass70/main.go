/*
	   COMPASS70 - CDC 6000 cross-assembler

	Copyright (c) 2024, Richard Cornwell

	Permission is hereby granted, free of charge, to any person obtaining a
	copy of this software and associated documentation files (the "Software"),
	to deal in the Software without restriction, including without limitation
	the rights to use, copy, modify, merge, publish, distribute, sublicense,
	and/or sell copies of the Software, and to permit persons to whom the
	Software is furnished to do so, subject to the following conditions:

	The above copyright notice and this permission notice shall be included in
	all copies or substantial portions of the Software.

	THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
	IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
	FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
	RICHARD CORNWELL BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
	IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
	CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
*/

package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"

	getopt "github.com/pborman/getopt/v2"

	"github.com/rcornwell/compass70/internal/asmlog"
	"github.com/rcornwell/compass70/internal/instr"
	"github.com/rcornwell/compass70/internal/lexer"
	"github.com/rcornwell/compass70/internal/listing"
	"github.com/rcornwell/compass70/internal/pass"
)

var logger *slog.Logger

func main() {
	optOutput := getopt.StringLong("output", 'o', "binfile", "Binary object output file")
	optListing := getopt.StringLong("listing", 'l', "", "Listing output file")
	optLog := getopt.StringLong("log", 'g', "", "Operational log file")
	optInstMap := getopt.StringLong("instmap", 'm', "", "External instruction map file")
	optDebug := getopt.BoolLong("debug", 'd', "Enable debug trace")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var logWriter io.Writer
	if *optLog != "" {
		logFile, err := os.Create(*optLog)
		if err != nil {
			fmt.Fprintf(os.Stderr, "compass70: cannot create log file %q: %v\n", *optLog, err)
			os.Exit(1)
		}
		defer logFile.Close()
		logWriter = logFile
	}
	logger = asmlog.New(logWriter, *optDebug)
	slog.SetDefault(logger)

	args := getopt.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "compass70: exactly one source file argument is required")
		getopt.Usage()
		os.Exit(1)
	}
	sourcePath := args[0]

	if *optInstMap != "" {
		if err := instr.LoadMapFile(*optInstMap); err != nil {
			logger.Error("loading instruction map", "error", err)
			fmt.Fprintf(os.Stderr, "compass70: %v\n", err)
			os.Exit(1)
		}
		logger.Info("loaded instruction map", "path", *optInstMap)
	}

	source, err := os.Open(sourcePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "compass70: cannot open %q: %v\n", sourcePath, err)
		os.Exit(1)
	}
	lines, err := readLines(source)
	source.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "compass70: reading %q: %v\n", sourcePath, err)
		os.Exit(1)
	}

	logger.Info("assembly started", "source", sourcePath, "lines", len(lines))
	driver := pass.New(lines)
	words, rows, err := driver.Run()
	if err != nil {
		logger.Error("assembly aborted", "error", err)
		fmt.Fprintf(os.Stderr, "compass70: %v\n", err)
		os.Exit(1)
	}

	var listWriter io.Writer = os.Stdout
	if *optListing != "" {
		lf, err := os.Create(*optListing)
		if err != nil {
			fmt.Fprintf(os.Stderr, "compass70: cannot create listing %q: %v\n", *optListing, err)
			os.Exit(1)
		}
		defer lf.Close()
		listWriter = lf
	}
	title := driver.State.Title
	if title == "" {
		title = sourcePath
	}
	if werr := listing.Write(listWriter, title, rows); werr != nil {
		logger.Error("writing listing", "error", werr)
	}

	errCount := driver.Sink.ErrorCount()
	warnCount := driver.Sink.WarningCount()
	for _, d := range driver.Sink.All() {
		fmt.Fprintf(os.Stderr, "%c %6d  %s\n", d.Severity, d.Line, d.Message)
	}

	if errCount > 0 {
		logger.Error("assembly finished with errors", "errors", errCount, "warnings", warnCount)
		os.Exit(1)
	}

	bf, err := os.Create(*optOutput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "compass70: cannot create %q: %v\n", *optOutput, err)
		os.Exit(1)
	}
	if werr := listing.WriteBinary(bf, words); werr != nil {
		logger.Error("writing binary output", "error", werr)
		bf.Close()
		os.Exit(1)
	}
	bf.Close()

	logger.Info("assembly finished", "warnings", warnCount, "words", len(words))
	os.Exit(0)
}

// readLines splits source text into lexer.Line values, numbered from 1.
func readLines(r *os.File) ([]lexer.Line, error) {
	var lines []lexer.Line
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		lines = append(lines, lexer.Parse(scanner.Text(), lineNum))
	}
	return lines, scanner.Err()
}
