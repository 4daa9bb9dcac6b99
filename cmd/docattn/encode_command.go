package main

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/docattn/go-docattn/multidoc"
)

func newEncodeCommand(configFlag *string) *cobra.Command {
	var inputPath string
	var outPath string
	var printProcessed bool

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode multi-document examples into model-ready batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFlag)
			if err != nil {
				return err
			}
			if inputPath == "" {
				return errors.New("an input file is required (--input)")
			}
			if outPath == "" {
				return errors.New("an output file is required (--out)")
			}

			tok, err := openTokenizer(cfg.TokenizerPath)
			if err != nil {
				return err
			}
			encoder, err := multidoc.NewEncoder(tok, cfg.encoderConfig())
			if err != nil {
				return err
			}

			raw, err := readExamples(inputPath)
			if err != nil {
				return err
			}
			klog.V(1).Infof("Encoding %d examples with %d workers", len(raw), cfg.Workers)

			examples, err := encoder.EncodeAll(cmd.Context(), raw, cfg.Workers)
			if err != nil {
				return err
			}
			batch := encoder.Collate(examples)
			batch.Dropped = len(raw) - len(examples)

			if printProcessed {
				printSegments(cmd, tok, examples)
			}

			if err := writeBatch(outPath, batch); err != nil {
				return err
			}
			printEncodeSummary(cmd, len(raw), batch)
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "JSON-lines file of {source, target} examples")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Destination file for the collated batch")
	cmd.Flags().BoolVar(&printProcessed, "print-processed", false, "Print the decoded document segments of each example")
	return cmd
}

// readExamples parses a JSON-lines file, one {"source": ..., "target": ...}
// object per line. Blank lines are skipped.
func readExamples(path string) ([]multidoc.RawExample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open input %s", path)
	}
	defer f.Close()

	var raw []multidoc.RawExample
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ex multidoc.RawExample
		if err := json.Unmarshal(line, &ex); err != nil {
			return nil, errors.Wrapf(err, "failed to parse %s line %d", path, lineNo)
		}
		raw = append(raw, ex)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read input %s", path)
	}
	return raw, nil
}

func writeBatch(path string, batch *multidoc.Batch) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return errors.Wrap(err, "failed to serialize batch")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write batch %s", path)
	}
	return nil
}
