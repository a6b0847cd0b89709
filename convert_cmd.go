package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/ingest"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// conversionFlags maps flag names to config keys. They are bound when a
// command that defines them runs.
var conversionFlags = map[string]string{
	"engine":       "engine",
	"voice":        "voice",
	"prompt":       "prompt",
	"out":          "output.dir",
	"merge":        "output.merge",
	"max-inflight": "max_inflight",
	"metrics-addr": "metrics_addr",
}

var convertCmd = &cobra.Command{
	Use:   "convert FILE|DIR...",
	Short: "Convert scripts and subtitle files to voiceover audio",
	Long: paragraph(fmt.Sprintf("\n%s every .txt and .srt file given. Each file becomes a batch; "+
		"its lines are voiced concurrently and the batch is merged into one WAV, "+
		"timed to the subtitles when the file carries timing.", keyword("Convert"))),
	Example: paragraph("mangarecap convert --engine gemini --voice Kore chapter-12.srt\nmangarecap convert --engine mock --merge concat scripts/"),
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := expandInputs(args)
		if err != nil {
			return err
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		a.serveMetrics(ctx, cfg.MetricsAddr)

		log.Info("starting conversion", "engine", a.engine, "voice", a.req.VoiceID, "files", len(paths))
		loadErrs := a.load(paths)
		rows, runErr := a.run(ctx, loadErrs)

		printSummary(cmd.OutOrStdout(), rows, terminalWidth())

		if runErr != nil {
			return fmt.Errorf("conversion interrupted: %w", runErr)
		}
		failed := 0
		for _, r := range rows {
			if r.Err != nil {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files could not be converted", failed, len(rows))
		}
		return nil
	},
}

func init() {
	addConversionFlags(convertCmd.Flags())
	convertCmd.Flags().Bool("no-lines", false, "skip the per-line WAV files and write only the merged file")
}

// addConversionFlags registers the flags shared by convert and watch.
func addConversionFlags(fs *pflag.FlagSet) {
	fs.StringP("engine", "e", "", "synthesis engine (gemini or mock)")
	fs.String("voice", "", "voice name passed to the engine")
	fs.StringP("prompt", "p", "", "style instruction prepended to every line")
	fs.StringP("out", "o", "", "output directory")
	fs.String("merge", "", "merged file: auto, concat, timed or none")
	fs.Int("max-inflight", 0, "max concurrent lines per file (0 = unbounded)")
	fs.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
}

// bindConversionFlags binds whichever conversion flags cmd defines.
func bindConversionFlags(cmd *cobra.Command) {
	for name, key := range conversionFlags {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			_ = viper.BindPFlag(key, f)
		}
	}
	if f := cmd.Flags().Lookup("no-lines"); f != nil && f.Changed {
		viper.Set("output.lines", f.Value.String() != "true")
	}
}

// expandInputs resolves directory arguments to the supported files they
// contain. Files keep argument order; directory entries are sorted.
func expandInputs(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		st, err := os.Stat(arg)
		if err != nil {
			// let the loader report it as a failed batch
			paths = append(paths, arg)
			continue
		}
		if !st.IsDir() {
			paths = append(paths, arg)
			continue
		}

		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("unable to read directory: %w", err)
		}
		var found []string
		for _, e := range entries {
			if !e.IsDir() && ingest.Supported(e.Name()) {
				found = append(found, filepath.Join(arg, e.Name()))
			}
		}
		sort.Strings(found)
		if len(found) == 0 {
			log.Warn("no .txt or .srt files found", "dir", arg)
		}
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		return nil, errors.New("nothing to convert")
	}
	return paths, nil
}
