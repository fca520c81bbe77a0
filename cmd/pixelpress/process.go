package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dunamismax/pixelpress/internal/config"
	"github.com/dunamismax/pixelpress/internal/imaging"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run one transform over an image file",
	Example: `  pixelpress process -i photo.jpg -o thumb.jpg --width 320 --quality 85
  pixelpress process -i scan.png -o crop.png --crop 10,10,400,300 --grayscale`,
	RunE: runProcess,
}

func init() {
	f := processCmd.Flags()
	f.StringP("input", "i", "", "Input JPEG or PNG file (- for stdin)")
	f.StringP("output", "o", "", "Output file (- for stdout)")
	f.StringP("format", "f", "", "Output format: jpeg or png (default: same family as input)")
	f.IntP("quality", "q", 80, "JPEG quality 1-100")
	f.Int("width", 0, "Target width; 0 keeps aspect ratio from height")
	f.Int("height", 0, "Target height; 0 keeps aspect ratio from width")
	f.Bool("grayscale", false, "Convert to grayscale")
	f.String("crop", "", "Crop region x,y,width,height applied before resizing")
	f.String("resampler", string(imaging.ResampleBilinear), "Resampling filter: bilinear, catmullrom, box or lanczos3")
	f.String("png-compression", "best", "PNG compression: best, speed or none")
	f.Bool("no-passthrough", false, "Always re-encode, even when the source could be copied as is")
	processCmd.MarkFlagRequired("input")
	processCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	inputPath, _ := flags.GetString("input")
	outputPath, _ := flags.GetString("output")
	format, _ := flags.GetString("format")
	quality, _ := flags.GetInt("quality")
	width, _ := flags.GetInt("width")
	height, _ := flags.GetInt("height")
	grayscale, _ := flags.GetBool("grayscale")
	cropSpec, _ := flags.GetString("crop")
	resamplerName, _ := flags.GetString("resampler")
	compression, _ := flags.GetString("png-compression")
	noPassthrough, _ := flags.GetBool("no-passthrough")

	resampler, err := imaging.ParseResampler(resamplerName)
	if err != nil {
		return err
	}
	level, err := config.ParsePNGCompression(compression)
	if err != nil {
		return err
	}

	opts := imaging.Options{
		Format:    format,
		Quality:   quality,
		Width:     width,
		Height:    height,
		Grayscale: grayscale,
	}
	if cropSpec != "" {
		region, err := imaging.ParseCropRegion(cropSpec)
		if err != nil {
			return err
		}
		opts.Crop = &region
	}

	src, err := readInput(cmd, inputPath)
	if err != nil {
		return err
	}

	engine := imaging.New(imaging.Settings{
		Resampler:          resampler,
		PNGCompression:     level,
		DisablePassthrough: noPassthrough,
	})
	req, err := opts.Request(src)
	if err != nil {
		return fmt.Errorf("processing %s: %w", inputPath, err)
	}
	res, err := engine.Process(req)
	if err != nil {
		return fmt.Errorf("processing %s: %w", inputPath, err)
	}

	if err := writeOutput(cmd, outputPath, res.Data); err != nil {
		return err
	}

	note := ""
	if res.Passthrough {
		note = " (source copied unchanged)"
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s: %dx%d %s, %s -> %s%s\n",
		outputPath, res.Width, res.Height, res.Format,
		humanize.Bytes(uint64(len(src))), humanize.Bytes(uint64(len(res.Data))), note)
	return nil
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
