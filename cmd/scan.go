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

package cmd

import (
	"fmt"
	"os"
	"regexp"

	"github.com/shenwei356/gtdb/index"
	"github.com/shenwei356/gtdb/scan"
	"github.com/shenwei356/util/pathutil"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"gonum.org/v1/gonum/stat"
)

// resolvedScanConfig is the fully-merged view of a run's settings:
// CLI flags override a -c/--config file, which in turn overrides the
// zero-value defaults, per §6.1.
type resolvedScanConfig struct {
	canonicalDB string
	outPrefix   string
	l, m        uint8
	preload     bool
	inDir       string
	fileRegexp  string
	force       bool
	summary     bool
	files       []string
}

// defaultConfigPath is the implicit -c/--config search path used when
// the flag isn't given explicitly, per SPEC_FULL §6.1.
const defaultConfigPath = "./.gtdb.toml"

func resolveScanConfig(cmd *cobra.Command, args []string) resolvedScanConfig {
	var file *scanConfig
	path := getFlagString(cmd, "config")
	if path == "" {
		if ok, err := pathutil.Exists(defaultConfigPath); err == nil && ok {
			path = defaultConfigPath
		}
	}
	if path != "" {
		loaded, err := loadScanConfig(path)
		checkError(err)
		file = loaded
	}

	cfg := resolvedScanConfig{
		canonicalDB: expandPath(getFlagString(cmd, "canonical-db")),
		outPrefix:   expandPath(getFlagString(cmd, "out-prefix")),
		l:           getFlagUint8(cmd, "lmer-bits"),
		m:           getFlagUint8(cmd, "bloom-bits"),
		preload:     getFlagBool(cmd, "preload"),
		inDir:       expandPath(getFlagString(cmd, "in-dir")),
		fileRegexp:  getFlagString(cmd, "file-regexp"),
		force:       getFlagBool(cmd, "force"),
		summary:     getFlagBool(cmd, "summary"),
		files:       args,
	}

	if file == nil {
		return cfg
	}

	if cfg.canonicalDB == "" {
		cfg.canonicalDB = expandPath(file.CanonicalDB)
	}
	if !cmd.Flags().Changed("out-prefix") && file.OutPrefix != "" {
		cfg.outPrefix = expandPath(file.OutPrefix)
	}
	if !cmd.Flags().Changed("lmer-bits") && file.L != 0 {
		cfg.l = file.L
	}
	if !cmd.Flags().Changed("bloom-bits") && file.M != 0 {
		cfg.m = file.M
	}
	if !cmd.Flags().Changed("preload") && file.Preload {
		cfg.preload = file.Preload
	}
	if cfg.inDir == "" && file.InDir != "" {
		cfg.inDir = expandPath(file.InDir)
	}
	if !cmd.Flags().Changed("file-regexp") && file.FileRegexp != "" {
		cfg.fileRegexp = file.FileRegexp
	}
	if len(cfg.files) == 0 && len(file.Files) > 0 {
		cfg.files = file.Files
	}

	return cfg
}

const defaultFileRegexp = `\.f(ast)?q(.gz)?$`

func init() {
	RootCmd.Flags().StringP("canonical-db", "d", "",
		formatFlagUsage("Canonical database file (required)."))
	RootCmd.Flags().StringP("out-prefix", "o", "./out",
		formatFlagUsage("Prefix for per-file TSV output, one <prefix>.<n>.tsv per input."))
	RootCmd.Flags().Uint8P("lmer-bits", "l", index.DefaultParams.L,
		formatFlagUsage("Bits of L-mer prefix used for the range index."))
	RootCmd.Flags().Uint8P("bloom-bits", "m", index.DefaultParams.M,
		formatFlagUsage("Bits of M-mer address used for the bloom filter."))
	RootCmd.Flags().BoolP("preload", "p", false,
		formatFlagUsage("Load the optimized index fully into memory instead of mmapping it."))
	RootCmd.Flags().StringP("in-dir", "I", "",
		formatFlagUsage("Directory of FASTQ/FASTQ.GZ files to scan, in place of or in addition to positional arguments."))
	RootCmd.Flags().String("file-regexp", defaultFileRegexp,
		formatFlagUsage("Filename filter used with --in-dir."))
	RootCmd.Flags().StringP("config", "c", "",
		formatFlagUsage("TOML config file supplying defaults for any flag above; explicit flags override it."))
	RootCmd.Flags().Bool("summary", false,
		formatFlagUsage("Log the mean and standard deviation of per-SNP counts for each input file."))
	RootCmd.Flags().Bool("force", false,
		formatFlagUsage("Rebuild the optimized index even if a valid one is already on disk."))

	RootCmd.Run = runScan
}

func runScan(cmd *cobra.Command, args []string) {
	if getFlagBool(cmd, "usage") {
		_ = cmd.Help()
		os.Exit(1)
	}

	opt := getOptions(cmd)
	addLog(opt.LogFile, !opt.Verbose)

	cfg := resolveScanConfig(cmd, args)

	if cfg.canonicalDB == "" {
		checkError(fmt.Errorf("flag --canonical-db/-d is required"))
	}
	ok, err := pathutil.Exists(cfg.canonicalDB)
	checkError(err)
	if !ok {
		checkError(fmt.Errorf("canonical database not found: %s", cfg.canonicalDB))
	}

	pattern, err := regexp.Compile(cfg.fileRegexp)
	checkError(err)

	files := cfg.files
	if cfg.inDir != "" {
		found, err := getFileListFromDir(cfg.inDir, pattern, opt.NumCPUs)
		checkError(err)
		files = append(files, found...)
	}
	if len(files) == 0 {
		checkError(fmt.Errorf("no input files: pass positional FASTQ files or -I/--in-dir"))
	}

	params, err := index.NewParams(cfg.l, cfg.m)
	checkError(err)

	dbPrefix := cfg.canonicalDB
	if cfg.force {
		snps, kmerIdx, lmerIdx, bloom := index.Filenames(dbPrefix, params)
		for _, f := range []string{snps, kmerIdx, lmerIdx, bloom} {
			_ = removeIfExists(f)
		}
	}

	var pbs *mpb.Progress
	if opt.Verbose {
		pbs = mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr))
	}

	log.Infof("loading database: %s", cfg.canonicalDB)
	db, err := index.Open(cfg.canonicalDB, dbPrefix, params, cfg.preload, index.BuildOptions{Verbose: opt.Verbose, Progress: pbs})
	checkError(err)
	defer db.Close()
	if pbs != nil {
		pbs.Wait()
	}

	log.Infof("scanning %d file(s) with %d worker(s)", len(files), opt.NumCPUs)
	onProgress := func(path string, reads int64) {
		log.Infof("%s: %d reads scanned", path, reads)
	}
	results := scan.Dispatch(db, files, cfg.outPrefix, opt.NumCPUs, onProgress)

	failed := false
	for _, res := range results {
		if res.Err != nil {
			log.Errorf("%s: %s", res.Path, res.Err)
			failed = true
			continue
		}
		if len(res.Tallies) == 0 {
			log.Infof("%s: zero hits", res.Path)
			continue
		}
		log.Infof("%s: %d SNPs -> %s", res.Path, len(res.Tallies), res.Out)
		if cfg.summary {
			logSummary(res)
		}
	}

	if failed {
		checkError(fmt.Errorf("one or more input files failed to scan"))
	}
}

func logSummary(res scan.FileResult) {
	counts := make([]float64, len(res.Tallies))
	for i, t := range res.Tallies {
		counts[i] = float64(t.Count)
	}
	mean, std := stat.MeanStdDev(counts, nil)
	log.Infof("%s: per-SNP count mean=%.3f stdev=%.3f", res.Path, mean, std)
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
