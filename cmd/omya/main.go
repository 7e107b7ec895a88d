package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/yungbote/omya-backend/internal/app"
	"github.com/yungbote/omya-backend/internal/modules/coursegen/output"
	"github.com/yungbote/omya-backend/internal/platform/apierr"
	"github.com/yungbote/omya-backend/internal/platform/shutdown"
)

const (
	exitValidation = 1
	exitNotFound   = 2
	exitFailure    = 3
)

type options struct {
	audio    string
	text     string
	textFile string
	title    string
	outBase  string
	language string
	docx     bool
	watch    string
	outDir   string
	runs     int
}

var errUsage = errors.New("usage")

func parseArgs(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("omya", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.audio, "audio", "", "path to an audio file")
	fs.StringVar(&o.text, "text", "", "raw text to turn into a course")
	fs.StringVar(&o.textFile, "text-file", "", "path to a UTF-8 text, Markdown or HTML file")
	fs.StringVar(&o.title, "title", "", "optional course title")
	fs.StringVar(&o.outBase, "out-base", output.DefaultBase, "output path prefix")
	fs.StringVar(&o.language, "language", "", "output language code (default from OMYA_LANGUAGE)")
	fs.BoolVar(&o.docx, "docx", false, "also write <out-base>_course.docx")
	fs.StringVar(&o.watch, "watch", "", "process audio files created in this directory until interrupted")
	fs.StringVar(&o.outDir, "out-dir", "", "output directory for --watch (default: the watched directory)")
	fs.IntVar(&o.runs, "runs", 0, "list the N most recent run records and exit")
	if err := fs.Parse(args); err != nil {
		return o, errUsage
	}

	modes := 0
	for _, set := range []bool{o.audio != "", o.text != "", o.textFile != "", o.watch != "", o.runs > 0} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		fmt.Fprintln(stderr, "exactly one of --audio, --text, --text-file, --watch or --runs is required")
		fs.Usage()
		return o, errUsage
	}
	return o, nil
}

func exitCode(err error) int {
	switch apierr.KindOf(err) {
	case apierr.KindValidation:
		return exitValidation
	case apierr.KindNotFound:
		return exitNotFound
	default:
		return exitFailure
	}
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		return exitValidation
	}
	if opts.text != "" && strings.TrimSpace(opts.text) == "" {
		fmt.Fprintln(stderr, "Empty text.")
		return exitValidation
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return exitCode(err)
	}

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "failed to initialize app: %v\n", err)
		return exitFailure
	}
	defer a.Close()

	switch {
	case opts.watch != "":
		err = runWatch(ctx, a, opts)
	case opts.runs > 0:
		err = listRuns(ctx, a, opts.runs, stdout)
	default:
		err = runOnce(ctx, a, opts, stdout)
	}
	if err != nil {
		fmt.Fprintf(stderr, "omya: %v\n", err)
		return exitCode(err)
	}
	return 0
}
