// Command ebookc lays out and exports e-books offline, and extracts text
// from files the enhance flow accepts.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/gvmoraes79/FabricaEbook/internal/config"
	"github.com/gvmoraes79/FabricaEbook/internal/ebook"
	"github.com/gvmoraes79/FabricaEbook/internal/generate"
	"github.com/gvmoraes79/FabricaEbook/internal/layout"
	"github.com/gvmoraes79/FabricaEbook/internal/parser"
	"github.com/gvmoraes79/FabricaEbook/internal/render"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "ebookc:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	layoutFlags := []cli.Flag{
		&cli.StringFlag{Name: "profile", Usage: "YAML layout profile", EnvVars: []string{"LAYOUT_PROFILE"}},
		&cli.StringFlag{Name: "font-dir", Usage: "directory with regular.ttf and bold.ttf", EnvVars: []string{"FONT_DIR"}},
		&cli.StringFlag{Name: "language", Aliases: []string{"l"}, Usage: "language of the book's fixed titles"},
		&cli.BoolFlag{Name: "no-diagramming", Usage: "omit the cover and contents pages"},
	}

	return &cli.App{
		Name:  "ebookc",
		Usage: "e-book layout and export tool",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "debug logging"},
		},
		Commands: []*cli.Command{
			{
				Name:      "render",
				Usage:     "export a book JSON file as PDF or plain text",
				ArgsUsage: "<book.json>",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "pdf", Usage: "pdf or txt"},
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file (default: derived from the title)"},
					&cli.StringFlag{Name: "label", Usage: "product label in the footer", EnvVars: []string{"PRODUCT_LABEL"}},
				}, layoutFlags...),
				Action: runRender,
			},
			{
				Name:      "outline",
				Usage:     "print the page plan of a book JSON file",
				ArgsUsage: "<book.json>",
				Flags:     layoutFlags,
				Action:    runOutline,
			},
			{
				Name:      "extract",
				Usage:     "print the text extracted from a document",
				ArgsUsage: "<file>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "pdftotext", Value: true, Usage: "fall back to pdftotext for PDFs", EnvVars: []string{"PDF_FALLBACK_PDFTOTEXT"}},
				},
				Action: runExtract,
			},
		},
	}
}

func logger(c *cli.Context) *slog.Logger {
	level := slog.LevelInfo
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func argPath(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("%s: expected exactly one argument %s", c.Command.Name, c.Command.ArgsUsage)
	}
	return c.Args().First(), nil
}

// renderer builds a ready renderer from the layout flags and returns the
// policy for the chosen language.
func renderer(c *cli.Context, log *slog.Logger) (*render.Renderer, layout.Policy, error) {
	profile, err := config.LoadProfile(c.String("profile"))
	if err != nil {
		return nil, layout.Policy{}, err
	}
	policy := profile.Policy
	if c.IsSet("language") {
		lang, err := generate.ParseLanguage(c.String("language"))
		if err != nil {
			return nil, layout.Policy{}, err
		}
		policy = lang.Localize(policy)
	}
	if c.Bool("no-diagramming") {
		policy.Diagramming = false
	}

	r := render.New(render.Options{
		Spec:         profile.Page,
		Policy:       policy,
		ProductLabel: c.String("label"),
		FontDir:      c.String("font-dir"),
	}, log)
	ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()
	r.Start(ctx)
	for !r.Ready() {
		select {
		case <-ctx.Done():
			return nil, layout.Policy{}, render.ErrRendererNotReady
		case <-time.After(10 * time.Millisecond):
		}
	}
	return r, policy, nil
}

func runRender(c *cli.Context) error {
	log := logger(c)
	path, err := argPath(c)
	if err != nil {
		return err
	}
	doc, err := readBook(path)
	if err != nil {
		return err
	}

	var data []byte
	format := strings.ToLower(c.String("format"))
	switch format {
	case "txt":
		data = []byte(render.RenderPlainText(doc))
	case "pdf":
		r, policy, err := renderer(c, log)
		if err != nil {
			return err
		}
		if data, err = r.RenderWith(doc, policy); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown format %q (want pdf or txt)", format)
	}

	out := c.String("out")
	if out == "" {
		out = filepath.Join(filepath.Dir(path), render.Filename(doc.Title, format))
	}
	if out == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return err
	}
	log.Info("written", "file", out, "bytes", len(data), "chapters", len(doc.Chapters))
	return nil
}

func runOutline(c *cli.Context) error {
	log := logger(c)
	path, err := argPath(c)
	if err != nil {
		return err
	}
	doc, err := readBook(path)
	if err != nil {
		return err
	}
	r, policy, err := renderer(c, log)
	if err != nil {
		return err
	}
	pages, err := r.PlanWith(doc, policy)
	if err != nil {
		return err
	}
	return writeOutline(c.App.Writer, doc, pages)
}

// writeOutline prints one line per page: position, printed number, kind
// and the chapters that appear on it.
func writeOutline(w io.Writer, doc ebook.Document, pages []layout.Page) error {
	for _, pg := range pages {
		number := "-"
		if pg.Number > 0 {
			number = fmt.Sprint(pg.Number)
		}
		var titles []string
		seen := map[int]bool{}
		for _, it := range pg.Items {
			if it.Chapter < 0 || it.Chapter >= len(doc.Chapters) || seen[it.Chapter] {
				continue
			}
			seen[it.Chapter] = true
			titles = append(titles, doc.Chapters[it.Chapter].Title)
		}
		if _, err := fmt.Fprintf(w, "%3d  %4s  %-10s  %s\n", pg.Index, number, pg.Kind, strings.Join(titles, " | ")); err != nil {
			return err
		}
	}
	return nil
}

func runExtract(c *cli.Context) error {
	path, err := argPath(c)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	text, err := parser.ExtractText(filepath.Base(path), data, parser.Options{PDFFallback: c.Bool("pdftotext")})
	if err != nil {
		return err
	}
	logger(c).Debug("extracted", "file", path, "chars", len(text))
	_, err = fmt.Fprintln(c.App.Writer, text)
	return err
}
