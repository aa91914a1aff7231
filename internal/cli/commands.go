package cli

import (
	"github.com/spf13/cobra"

	"github.com/Lllllllleong/pdftools/internal/config"
	"github.com/Lllllllleong/pdftools/internal/models"
	"github.com/Lllllllleong/pdftools/internal/pipeline"
)

// outputOptions are shared by commands that take one or many inputs.
type outputOptions struct {
	output    string
	outputDir string
}

func (o *outputOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.output, "output", "o", "", "Output file (single input only)")
	cmd.Flags().StringVarP(&o.outputDir, "output-dir", "d", "", "Output directory (defaults to each input's directory)")
}

// compressionOptions override the configured compression defaults when set.
type compressionOptions struct {
	level             string
	keepMetadata      bool
	removeAnnotations bool
}

func (o *compressionOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.level, "level", "l", "", "Compression level: high, medium or low")
	cmd.Flags().BoolVar(&o.keepMetadata, "keep-metadata", false, "Keep document and page metadata")
	cmd.Flags().BoolVar(&o.removeAnnotations, "remove-annotations", false, "Remove page annotations")
}

func (o *compressionOptions) settings(cmd *cobra.Command, cfg config.Config) (models.CompressionSettings, error) {
	s := cfg.CompressionSettings()
	if cmd.Flags().Changed("level") {
		level, err := models.ParseCompressionLevel(o.level)
		if err != nil {
			return s, err
		}
		s.Level = level
	}
	if cmd.Flags().Changed("keep-metadata") {
		s.RemoveMetadata = !o.keepMetadata
	}
	if cmd.Flags().Changed("remove-annotations") {
		s.RemoveAnnotations = o.removeAnnotations
	}
	return s, nil
}

type compressOptions struct {
	outputOptions
	compressionOptions
}

func (a *App) newCompressCmd() *cobra.Command {
	opts := &compressOptions{}
	cmd := &cobra.Command{
		Use:   "compress <file.pdf>...",
		Short: "Recompress embedded images",
		Long: `Recompress the images of each input. A recompressed image only replaces the
original when it is smaller. Without --output each input is written next to itself
(or into --output-dir) as <name>_compressed.pdf.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, p, err := a.setup()
			if err != nil {
				return err
			}
			s, err := opts.settings(cmd, cfg)
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), p, pipeline.Request{
				Operation:   pipeline.OpCompress,
				Inputs:      args,
				Output:      opts.output,
				OutputDir:   opts.outputDir,
				Compression: s,
			})
		},
	}
	opts.outputOptions.bind(cmd)
	opts.compressionOptions.bind(cmd)
	return cmd
}

type mergeOptions struct {
	output   string
	compress bool
	compressionOptions
}

func (a *App) newMergeCmd() *cobra.Command {
	opts := &mergeOptions{}
	cmd := &cobra.Command{
		Use:   "merge <file.pdf> <file.pdf>...",
		Short: "Concatenate documents in order",
		Long: `Concatenate the pages of every input in argument order. Inputs that do not
exist are skipped; at least two must remain.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, p, err := a.setup()
			if err != nil {
				return err
			}
			s, err := opts.settings(cmd, cfg)
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), p, pipeline.Request{
				Operation:     pipeline.OpMerge,
				Inputs:        args,
				Output:        opts.output,
				CompressAfter: opts.compress,
				Compression:   s,
			})
		},
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file")
	cmd.Flags().BoolVar(&opts.compress, "compress", false, "Compress the merged document")
	opts.compressionOptions.bind(cmd)
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func (a *App) newSplitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Split a document by page range or into single pages",
	}
	cmd.AddCommand(a.newSplitRangeCmd(), a.newSplitEachCmd())
	return cmd
}

type splitRangeOptions struct {
	output string
	start  int
	end    int
}

func (a *App) newSplitRangeCmd() *cobra.Command {
	opts := &splitRangeOptions{}
	cmd := &cobra.Command{
		Use:   "range <file.pdf>",
		Short: "Copy an inclusive page range into a new document",
		Long: `Copy pages --start to --end into --output. The range is clamped to the
document, so --end beyond the last page stops at the last page.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, p, err := a.setup()
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), p, pipeline.Request{
				Operation: pipeline.OpSplitRange,
				Inputs:    args,
				Output:    opts.output,
				Range:     models.PageRange{Start: opts.start, End: opts.end},
			})
		},
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file")
	cmd.Flags().IntVar(&opts.start, "start", 1, "First page")
	cmd.Flags().IntVar(&opts.end, "end", 1, "Last page")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func (a *App) newSplitEachCmd() *cobra.Command {
	var outputDir string
	cmd := &cobra.Command{
		Use:   "each <file.pdf>",
		Short: "Write every page to its own document",
		Long: `Write every page to <name>_page_<n>.pdf in --output-dir. Either every page is
written or none is.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, p, err := a.setup()
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), p, pipeline.Request{
				Operation: pipeline.OpSplitEach,
				Inputs:    args,
				OutputDir: outputDir,
			})
		},
	}
	cmd.Flags().StringVarP(&outputDir, "output-dir", "d", "", "Output directory (defaults to the input's directory)")
	return cmd
}

type extractOptions struct {
	output string
	pages  string
}

func (a *App) newExtractCmd() *cobra.Command {
	opts := &extractOptions{}
	cmd := &cobra.Command{
		Use:   "extract <file.pdf>",
		Short: "Copy selected pages into a new document",
		Long: `Copy the pages named by --pages, for example "1,3,5-7", into --output in
ascending order. Duplicates collapse and pages outside the document are ignored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, p, err := a.setup()
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), p, pipeline.Request{
				Operation: pipeline.OpExtract,
				Inputs:    args,
				Output:    opts.output,
				Pages:     opts.pages,
			})
		},
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output file")
	cmd.Flags().StringVarP(&opts.pages, "pages", "p", "", "Pages to extract, e.g. 1,3,5-7")
	_ = cmd.MarkFlagRequired("output")
	_ = cmd.MarkFlagRequired("pages")
	return cmd
}

type watermarkOptions struct {
	outputOptions
	text     string
	image    string
	opacity  float64
	angle    float64
	position string
	fontSize int
}

func (a *App) newWatermarkCmd() *cobra.Command {
	defaults := models.DefaultWatermarkSettings()
	opts := &watermarkOptions{}
	cmd := &cobra.Command{
		Use:   "watermark <file.pdf>...",
		Short: "Stamp a text or image watermark on every page",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, p, err := a.setup()
			if err != nil {
				return err
			}
			pos, err := models.ParsePosition(opts.position)
			if err != nil {
				return err
			}
			s := models.WatermarkSettings{
				Kind:     models.WatermarkText,
				Text:     opts.text,
				Opacity:  opts.opacity,
				Angle:    opts.angle,
				Position: pos,
				FontSize: opts.fontSize,
			}
			if opts.image != "" {
				s.Kind, s.ImagePath = models.WatermarkImage, opts.image
			}
			return a.run(cmd.Context(), p, pipeline.Request{
				Operation: pipeline.OpWatermark,
				Inputs:    args,
				Output:    opts.output,
				OutputDir: opts.outputDir,
				Watermark: s,
			})
		},
	}
	opts.outputOptions.bind(cmd)
	cmd.Flags().StringVar(&opts.text, "text", defaults.Text, "Watermark text")
	cmd.Flags().StringVar(&opts.image, "image", "", "Watermark image (replaces --text)")
	cmd.Flags().Float64Var(&opts.opacity, "opacity", defaults.Opacity, "Opacity between 0 and 1")
	cmd.Flags().Float64Var(&opts.angle, "angle", defaults.Angle, "Rotation in degrees")
	cmd.Flags().StringVar(&opts.position, "position", string(defaults.Position), "center, top-left, top-right, bottom-left or bottom-right")
	cmd.Flags().IntVar(&opts.fontSize, "font-size", defaults.FontSize, "Font size in points")
	return cmd
}

type protectOptions struct {
	outputOptions
	userPassword  string
	ownerPassword string
	requireOpen   bool
	noPrint       bool
	noCopy        bool
	noEdit        bool
}

func (a *App) newProtectCmd() *cobra.Command {
	opts := &protectOptions{}
	cmd := &cobra.Command{
		Use:   "protect <file.pdf>...",
		Short: "Encrypt documents with AES-256 and restrict permissions",
		Long: `Encrypt each input. The owner password defaults to the user password. The user
password is only required to open the document with --require-open-password.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, p, err := a.setup()
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), p, pipeline.Request{
				Operation: pipeline.OpProtect,
				Inputs:    args,
				Output:    opts.output,
				OutputDir: opts.outputDir,
				Protection: models.ProtectionSettings{
					UserPassword:          opts.userPassword,
					OwnerPassword:         opts.ownerPassword,
					RequirePasswordToOpen: opts.requireOpen,
					PreventPrinting:       opts.noPrint,
					PreventCopying:        opts.noCopy,
					PreventEditing:        opts.noEdit,
				},
			})
		},
	}
	opts.outputOptions.bind(cmd)
	cmd.Flags().StringVar(&opts.userPassword, "user-password", "", "Password needed to open the document")
	cmd.Flags().StringVar(&opts.ownerPassword, "owner-password", "", "Password needed to change permissions")
	cmd.Flags().BoolVar(&opts.requireOpen, "require-open-password", false, "Require the user password to open")
	cmd.Flags().BoolVar(&opts.noPrint, "no-print", false, "Prevent printing")
	cmd.Flags().BoolVar(&opts.noCopy, "no-copy", false, "Prevent copying content")
	cmd.Flags().BoolVar(&opts.noEdit, "no-edit", false, "Prevent editing")
	return cmd
}

type unprotectOptions struct {
	outputOptions
	password string
}

func (a *App) newUnprotectCmd() *cobra.Command {
	opts := &unprotectOptions{}
	cmd := &cobra.Command{
		Use:   "unprotect <file.pdf>...",
		Short: "Remove encryption from documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, p, err := a.setup()
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), p, pipeline.Request{
				Operation: pipeline.OpUnprotect,
				Inputs:    args,
				Output:    opts.output,
				OutputDir: opts.outputDir,
				Password:  opts.password,
			})
		},
	}
	opts.outputOptions.bind(cmd)
	cmd.Flags().StringVarP(&opts.password, "password", "p", "", "User or owner password")
	return cmd
}
