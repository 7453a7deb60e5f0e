package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/config"
	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/nlp"
	"github.com/LearnCode801/Name-Entity-Recognition-NER-Project/internal/render"
)

var tokenizeCmd = &cobra.Command{
	Use:   "tokenize [text...]",
	Short: "Split text into tokens and print their attributes",
	RunE:  runTokenize,
}

var nerCmd = &cobra.Command{
	Use:   "ner [text...]",
	Short: "Extract named entities from text",
	RunE:  runNER,
}

var (
	tokenizeFile string
	tokenizeJSON bool
	tokenAttrs   []string

	nerFile     string
	nerJSON     bool
	labelFilter []string
)

// loadPipeline is replaced in tests.
var loadPipeline = func(cfg *config.Config) (*nlp.Pipeline, error) {
	return nlp.Load(cfg.Model, cfg.Server.MaxTextBytes)
}

func init() {
	tokenizeCmd.Flags().StringVarP(&tokenizeFile, "file", "f", "", "Read text from a file (- for stdin)")
	tokenizeCmd.Flags().BoolVar(&tokenizeJSON, "json", false, "Print JSON instead of a table")
	nerCmd.Flags().StringVarP(&nerFile, "file", "f", "", "Read text from a file (- for stdin)")
	nerCmd.Flags().BoolVar(&nerJSON, "json", false, "Print JSON instead of a table")
	tokenizeCmd.Flags().StringSliceVarP(&tokenAttrs, "attrs", "a", nil, "Token attributes to show (default: "+strings.Join(render.DefaultTokenAttrs, ",")+")")
	nerCmd.Flags().StringSliceVarP(&labelFilter, "labels", "l", nil, "Only show these entity labels")

	rootCmd.AddCommand(tokenizeCmd)
	rootCmd.AddCommand(nerCmd)
}

func readInput(cmd *cobra.Command, inputFile string, args []string) (string, error) {
	switch {
	case inputFile == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	case inputFile != "":
		data, err := os.ReadFile(inputFile)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", inputFile, err)
		}
		return string(data), nil
	case len(args) > 0:
		return strings.Join(args, " "), nil
	default:
		return "", errors.New("no text given: pass it as arguments or with --file")
	}
}

func processInput(cmd *cobra.Command, inputFile string, args []string) (*nlp.Doc, *nlp.Pipeline, error) {
	text, err := readInput(cmd, inputFile, args)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	pipeline, err := loadPipeline(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("load model %s: %w", cfg.Model.Name, err)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	doc, err := pipeline.Process(ctx, text)
	if err != nil {
		pipeline.Close()
		return nil, nil, err
	}
	return doc, pipeline, nil
}

func runTokenize(cmd *cobra.Command, args []string) error {
	doc, pipeline, err := processInput(cmd, tokenizeFile, args)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	table := render.Tokens(doc, tokenAttrs)
	if tokenizeJSON {
		return writeJSON(cmd.OutOrStdout(), struct {
			Model  string            `json:"model"`
			Tokens []nlp.Token       `json:"tokens"`
			Table  render.TokenTable `json:"table"`
		}{doc.Model, nonNilTokens(doc.Tokens), table})
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(table.Columns, "\t"))
	for _, row := range table.Rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func runNER(cmd *cobra.Command, args []string) error {
	doc, pipeline, err := processInput(cmd, nerFile, args)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	view := render.Entities(doc, render.EntityOptions{Labels: labelFilter})
	if nerJSON {
		ents := make([]nlp.Span, 0, len(view.Rows))
		for _, e := range doc.Ents {
			if keepLabel(e.Label, labelFilter) {
				ents = append(ents, e)
			}
		}
		return writeJSON(cmd.OutOrStdout(), struct {
			Model string     `json:"model"`
			Mode  string     `json:"mode"`
			Ents  []nlp.Span `json:"ents"`
		}{doc.Model, pipeline.Mode, ents})
	}

	if len(view.Rows) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No entities found.")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TEXT\tLABEL\tSTART\tEND")
	for _, r := range view.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", oneLine(r.Text), r.Label, r.Start, r.End)
	}
	return tw.Flush()
}

func keepLabel(label string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if strings.EqualFold(strings.TrimSpace(f), label) {
			return true
		}
	}
	return false
}

func nonNilTokens(t []nlp.Token) []nlp.Token {
	if t == nil {
		return []nlp.Token{}
	}
	return t
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
