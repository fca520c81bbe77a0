package main

import (
	"fmt"

	"github.com/dunamismax/pixelpress/internal/imaging"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var identifyCmd = &cobra.Command{
	Use:   "identify [file]",
	Short: "Print format and dimensions without decoding pixels",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)
}

func runIdentify(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := readInput(cmd, path)
	if err != nil {
		return err
	}

	info, err := imaging.Identify(data)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	pixels := int64(info.Width) * int64(info.Height)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "File:       %s\n", path)
	fmt.Fprintf(out, "Format:     %s (%s)\n", info.Format, info.Format.ContentType())
	fmt.Fprintf(out, "Dimensions: %d x %d (%s pixels)\n", info.Width, info.Height, humanize.Comma(pixels))
	fmt.Fprintf(out, "File size:  %s\n", humanize.Bytes(uint64(len(data))))
	if err := info.CheckLimit(imaging.DefaultMaxPixels); err != nil {
		fmt.Fprintf(out, "Warning:    %v\n", err)
	}
	return nil
}
