package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mangarecapmsc-coder/mangarecapmsc/internal/audio"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:     "inspect FILE.wav...",
	Short:   "Show the format and duration of WAV files",
	Long:    paragraph(fmt.Sprintf("\n%s the header of each WAV file and report its format, size and play time.", keyword("Read"))),
	Example: paragraph("mangarecap inspect output/chapter-12/chapter-12_timed_merged.wav"),
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, p := range args {
			if err := inspectFile(cmd.OutOrStdout(), p); err != nil {
				return err
			}
		}
		return nil
	},
}

func inspectFile(w io.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("unable to read file: %w", err)
	}
	info, _, err := audio.DecodeWAV(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	fmt.Fprintln(w, headerStyle.Render(filepath.Base(path)))
	fmt.Fprintf(w, "  format    %d Hz, %d ch, %d-bit PCM\n", info.SampleRate, info.Channels, info.BitsPerSample)
	fmt.Fprintf(w, "  data      %s\n", humanize.Bytes(uint64(info.DataSize)))
	fmt.Fprintf(w, "  duration  %s\n", info.Duration.Round(time.Millisecond))
	if info.SampleRate != audio.SampleRate || info.Channels != audio.Channels || info.BitsPerSample != audio.BitsPerSample {
		fmt.Fprintln(w, warnStyle.Render("  not in the converter's output format"))
	}
	return nil
}
