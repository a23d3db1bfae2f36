// Copyright © 2023-2026 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package cmd implements the gtdb command line tool.
package cmd

import (
	"fmt"
	"os"

	"github.com/mattn/go-colorable"
	logging "github.com/shenwei356/go-logging"
	"github.com/spf13/cobra"
)

// VERSION is the current gtdb release.
const VERSION = "0.1.0"

var log *logging.Logger

// RootCmd is the single gtdb command; its Run is runScan.
var RootCmd = &cobra.Command{
	Use:   "gtdb",
	Short: "Ultra-fast SNP genotyping against a k-mer database",
	Long: fmt.Sprintf(`gtdb - ultra-fast SNP genotyping against a k-mer database

Version: %s

Genotype short reads against a curated database of SNP-centered k-mers,
built once from a canonical database and then reused across sequencing
runs via a memory-mapped or preloaded index.
`, VERSION),
}

// Execute runs the root command and exits the process on any error.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	logging.SetFormatter(logging.MustStringFormatter(
		`%{color}[%{level:.4s}]%{color:reset} %{message}`))
	backend := logging.NewLogBackend(colorable.NewColorableStderr(), "", 0)
	logging.SetBackend(backend)
	log = logging.MustGetLogger("gtdb")

	RootCmd.Flags().IntP("threads", "t", 1,
		formatFlagUsage("Number of files to scan concurrently, 0 for all CPUs."))
	RootCmd.Flags().StringP("log", "", "",
		formatFlagUsage("Log file, appended, in addition to stderr."))
	RootCmd.Flags().BoolP("quiet", "q", false,
		formatFlagUsage("Suppress non-error log messages."))
	RootCmd.Flags().BoolP("usage", "?", false,
		formatFlagUsage("Alias for -h/--help."))
	_ = RootCmd.Flags().MarkHidden("usage")

	// gt_pro.cpp exits 1 on -h/-?/usage error (display_usage then
	// exit(1)); cobra's default help handler exits 0, so wrap it.
	defaultHelpFunc := RootCmd.HelpFunc()
	RootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		defaultHelpFunc(cmd, args)
		os.Exit(1)
	})
}

// checkError prints err and exits with status 1. Every fallible
// operation ends here or is handled explicitly; there is no retry
// path (per the fail-fast policy).
func checkError(err error) {
	if err != nil {
		if err.Error() != "" {
			log.Errorf("%s", err)
			os.Exit(1)
		}
		os.Exit(0)
	}
}

// addLog attaches a file-backed log destination alongside stderr, per
// -\-log.
func addLog(logfile string, quiet bool) {
	if quiet {
		logging.SetLevel(logging.ERROR, "gtdb")
	} else {
		logging.SetLevel(logging.INFO, "gtdb")
	}
	if logfile == "" {
		return
	}
	fh, err := os.OpenFile(logfile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		checkError(fmt.Errorf("failed to open log file: %s: %w", logfile, err))
	}
	backend1 := logging.NewLogBackend(colorable.NewColorableStderr(), "", 0)
	backend2 := logging.NewLogBackend(fh, "", 0)
	backendFormatter := logging.NewBackendFormatter(backend1,
		logging.MustStringFormatter(`%{color}[%{level:.4s}]%{color:reset} %{message}`))
	backend2Formatter := logging.NewBackendFormatter(backend2,
		logging.MustStringFormatter(`[%{level:.4s}] %{time:2006-01-02 15:04:05} %{message}`))
	logging.SetBackend(backendFormatter, backend2Formatter)
}

