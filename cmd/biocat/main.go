// Command biocat categorizes sequencing reads against a set of Bloom
// filters, one per reference category, and routes each read (or pair) to
// the category that claims it.
//
// CLI shape (root command, cobra.Command subcommands, flags bound
// directly into local vars then wrapped into a config.RunConfig) is
// grounded on davidebolo1993-kfilt's buildCommand/filterCommand/
// versionCommand/main pattern.
package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/cheggaaa/pb/v3"
	"github.com/pkg/errors"
	"github.com/shenwei356/util/pathutil"
	"github.com/spf13/cobra"

	"github.com/go-biocat/biocat/internal/aggregate"
	"github.com/go-biocat/biocat/internal/bloomfilter"
	"github.com/go-biocat/biocat/internal/classify"
	"github.com/go-biocat/biocat/internal/config"
	"github.com/go-biocat/biocat/internal/kmer"
	"github.com/go-biocat/biocat/internal/pipeline"
	"github.com/go-biocat/biocat/internal/record"
	"github.com/go-biocat/biocat/internal/router"
)

const version = "0.1.0"

func categorizeCommand() *cobra.Command {
	var (
		filterPaths []string
		prefix      string
		minHitThr   int
		minHitPro   float64
		outputFastq bool
		input1      string
		input2      string
		interleaved string
		pairedMode  bool
		threads     int
		counts      bool
		chastity    bool
		mode        string
		inclusive   bool
	)
	cmd := &cobra.Command{
		Use:   "categorize",
		Short: "Categorize reads against a set of Bloom filters",
		Long: `categorize classifies FASTA/FASTQ reads against one or more pre-built
Bloom filters and routes each read, or read pair, to whichever filter
claims it (or to NO_MATCH / MULTI_MATCH).

Supports single-end input (-1), two-file paired-end input (-1/-2 with
--paired_mode), and single-file interleaved paired-end input (--interleaved).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCategorize(categorizeArgs{
				filterPaths:  filterPaths,
				prefix:       prefix,
				minHitThr:    minHitThr,
				minHitPro:    minHitPro,
				minHitProSet: cmd.Flags().Changed("min_hit_pro"),
				outputFastq:  outputFastq,
				input1:       input1,
				input2:       input2,
				interleaved:  interleaved,
				pairedMode:   pairedMode,
				threads:      threads,
				counts:       counts,
				chastity:     chastity,
				mode:         mode,
				inclusive:    inclusive,
			})
		},
	}
	cmd.Flags().StringSliceVarP(&filterPaths, "filters", "f", nil, "Bloom filter paths (required)")
	cmd.Flags().StringVarP(&prefix, "prefix", "p", "categorized", "Output prefix")
	cmd.Flags().IntVarP(&minHitThr, "min_hit_thr", "t", 2, "Legacy minimum matching k-mer count")
	cmd.Flags().Float64VarP(&minHitPro, "min_hit_pro", "m", 0.2, "Score threshold in [0,1] (1.0 selects BESTHIT)")
	cmd.Flags().BoolVarP(&outputFastq, "output_fastq", "o", false, "Route classified records to per-destination files")
	cmd.Flags().StringVarP(&input1, "input1", "1", "", "Input FASTA/FASTQ (R1 for paired mode)")
	cmd.Flags().StringVarP(&input2, "input2", "2", "", "Input FASTA/FASTQ R2 (paired mode)")
	cmd.Flags().StringVarP(&interleaved, "interleaved", "I", "", "Single interleaved FASTA/FASTQ")
	cmd.Flags().BoolVarP(&pairedMode, "paired_mode", "e", false, "Two-file paired-end input")
	cmd.Flags().IntVar(&threads, "threads", runtime.NumCPU(), "Worker thread count")
	cmd.Flags().BoolVarP(&counts, "counts", "c", false, "Also emit raw per-filter hit counts")
	cmd.Flags().BoolVar(&chastity, "chastity", false, "Gate reads by platform chaste flag")
	cmd.Flags().StringVar(&mode, "mode", "std", "Classifier mode: std, ordered, besthit, scores")
	cmd.Flags().BoolVar(&inclusive, "inclusive", false, "Paired verdict is OR of mates (default AND)")
	cmd.MarkFlagRequired("filters")
	return cmd
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("biocat version %s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

type categorizeArgs struct {
	filterPaths  []string
	prefix       string
	minHitThr    int
	minHitPro    float64
	minHitProSet bool
	outputFastq  bool
	input1       string
	input2       string
	interleaved  string
	pairedMode   bool
	threads      int
	counts       bool
	chastity     bool
	mode         string
	inclusive    bool
}

func parseMode(s string) (classify.Mode, error) {
	switch strings.ToLower(s) {
	case "std", "":
		return classify.STD, nil
	case "ordered":
		return classify.ORDERED, nil
	case "besthit":
		return classify.BESTHIT, nil
	case "scores":
		return classify.SCORES, nil
	default:
		return classify.STD, errors.Errorf("unknown mode %q", s)
	}
}

func runCategorize(a categorizeArgs) error {
	if len(a.filterPaths) == 0 {
		return errors.New("at least one -f/--filters path is required")
	}
	if a.input1 == "" && a.interleaved == "" {
		return errors.New("one of -1/--input1 or -I/--interleaved is required")
	}

	if ok, err := pathutil.DirExists(parentDir(a.prefix)); err != nil {
		return errors.Wrap(err, "checking output prefix directory")
	} else if !ok {
		return errors.Errorf("output prefix directory does not exist: %s", parentDir(a.prefix))
	}

	mode, err := parseMode(a.mode)
	if err != nil {
		return err
	}

	filters, k, err := loadFilters(a.filterPaths)
	if err != nil {
		return err
	}

	// -m/--min_hit_pro defaults to 0.2, but a run that never passes it
	// explicitly (e.g. -t alone) gets Threshold = 0, not the default.
	var threshold float64
	if a.minHitProSet {
		threshold = a.minHitPro
	}

	cfg := &config.RunConfig{
		Threads:       a.threads,
		FileInterval:  1000000,
		Chastity:      a.chastity,
		Inclusive:     a.inclusive,
		Mode:          mode,
		Threshold:     threshold,
		MinHitCount:   a.minHitThr,
		EmitCounts:    a.counts,
		OutputRecords: a.outputFastq,
		Prefix:        a.prefix,
	}

	classifier := classify.New(filters, cfg.Mode, cfg.Threshold, cfg.Inclusive).WithMinHitCount(cfg.MinHitCount)
	agg := aggregate.New(classifier.Labels())

	var rt *router.Router
	if cfg.OutputRecords {
		rt = router.New(cfg.Prefix, "")
		defer rt.Close()
	}

	total, err := countTotal(a)
	if err != nil {
		return errors.Wrap(err, "counting input records")
	}
	sink := newProgressBar(total)
	encoderFactory := func() *kmer.Encoder { return kmer.NewEncoder(k) }
	pl := pipeline.New(cfg, classifier, encoderFactory, agg, rt, sink)

	driveErr := drive(pl, a)
	sink.Finish()
	if driveErr != nil {
		return driveErr
	}

	summaryPath := cfg.Prefix + "_summary.tsv"
	f, err := os.Create(summaryPath)
	if err != nil {
		return errors.Wrap(err, "creating summary file")
	}
	defer f.Close()
	if err := agg.WriteSummary(f); err != nil {
		return errors.Wrap(err, "writing summary")
	}

	if cfg.EmitCounts {
		if err := writeRawCounts(cfg.Prefix+"_counts.tsv", classifier.Labels(), agg); err != nil {
			return errors.Wrap(err, "writing raw counts")
		}
	}
	return nil
}

func writeRawCounts(path string, labels []string, agg *aggregate.Aggregator) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	hits := agg.HitAnywhere()
	for i, label := range labels {
		if _, err := fmt.Fprintf(f, "%s\t%d\n", label, hits[i]); err != nil {
			return err
		}
	}
	return nil
}

func drive(pl *pipeline.Pipeline, a categorizeArgs) error {
	switch {
	case a.interleaved != "":
		src, err := record.NewFastxSource(a.interleaved, record.Unpaired)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = pl.RunInterleaved(src)
		return err
	case a.pairedMode && a.input2 != "":
		src1, err := record.NewFastxSource(a.input1, record.Mate1)
		if err != nil {
			return err
		}
		defer src1.Close()
		src2, err := record.NewFastxSource(a.input2, record.Mate2)
		if err != nil {
			return err
		}
		defer src2.Close()
		return pl.RunPaired(src1, src2)
	default:
		src, err := record.NewFastxSource(a.input1, record.Unpaired)
		if err != nil {
			return err
		}
		defer src.Close()
		return pl.RunSingle(src)
	}
}

// countTotal pre-scans the input for the record count a progress bar
// needs up front, mirroring the teacher's countReadsByMode: paired and
// interleaved runs count against input1 (or the interleaved file, halved
// for pair count) and assume both mates carry the same number of records.
func countTotal(a categorizeArgs) (int64, error) {
	if a.interleaved != "" {
		n, err := record.CountRecords(a.interleaved)
		return n / 2, err
	}
	return record.CountRecords(a.input1)
}

func loadFilters(paths []string) ([]classify.NamedFilter, int, error) {
	var out []classify.NamedFilter
	k := -1
	for _, p := range paths {
		f, err := bloomfilter.Load(p)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "loading filter %q", p)
		}
		if k == -1 {
			k = f.KmerSize()
		} else if f.KmerSize() != k {
			return nil, 0, errors.Errorf("filter %q has k=%d, expected k=%d (all filters in a run must share k)", p, f.KmerSize(), k)
		}
		out = append(out, classify.NamedFilter{Label: f.Label(), Filter: f})
	}
	return out, k, nil
}

func parentDir(prefix string) string {
	idx := strings.LastIndexByte(prefix, '/')
	if idx < 0 {
		return "."
	}
	return prefix[:idx]
}

// progressBar sizes a pb.Full bar from a pre-scan count, the way the
// teacher sizes its k-mer-loading bar from countLines, and drives it
// from the pipeline's periodic Notify calls via SetCurrent rather than
// per-record Increment.
type progressBar struct {
	bar *pb.ProgressBar
}

func newProgressBar(total int64) *progressBar {
	bar := pb.Full.Start64(total)
	bar.Set(pb.Bytes, false)
	return &progressBar{bar: bar}
}

func (p *progressBar) Notify(total int64) {
	p.bar.SetCurrent(total)
}

func (p *progressBar) Finish() {
	p.bar.Finish()
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "biocat",
		Short: "Categorize sequencing reads against Bloom filters",
		Long: `biocat classifies sequencing reads against a set of pre-built Bloom
filters, one per reference category, and routes each read (or read pair)
to the category whose filter claims it, or to a no-match/multi-match bin.`,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(categorizeCommand())
	rootCmd.AddCommand(versionCommand())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
