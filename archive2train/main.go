// Command archive2train converts recorded self-play turns into training rows
// for fitting evaluation weights.
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
	"github.com/spf13/pflag"

	"github.com/brensch/checkers/logging"
	"github.com/brensch/checkers/store"
)

func main() {
	inDir := pflag.String("in-dir", "", "Directory containing self-play parquet batches")
	outDir := pflag.String("out-dir", "", "Output directory for training parquet shards")
	pflag.Parse()

	log := logging.Must("info", true).Sugar()
	defer func() { _ = log.Sync() }()

	if *inDir == "" || *outDir == "" {
		fmt.Fprintln(os.Stderr, "--in-dir and --out-dir are required")
		os.Exit(2)
	}

	absIn, _ := filepath.Abs(*inDir)
	absOut, _ := filepath.Abs(*outDir)
	if absIn == absOut {
		fmt.Fprintln(os.Stderr, "out-dir must be different from in-dir")
		os.Exit(2)
	}
	if err := os.MkdirAll(absOut, 0o755); err != nil {
		log.Fatalf("create out-dir: %v", err)
	}

	inputs := findInputs(absIn)
	if len(inputs) == 0 {
		log.Fatalf("no parquet inputs found under %s", absIn)
	}

	convertedFiles, totalRows := 0, 0
	for _, inPath := range inputs {
		base := filepath.Base(inPath)
		outPath := filepath.Join(absOut, strings.TrimSuffix(base, filepath.Ext(base))+".train.parquet")
		n, err := convertOne(inPath, outPath)
		if err != nil {
			log.Errorf("convert %s: %v", inPath, err)
			continue
		}
		if n > 0 {
			convertedFiles++
			totalRows += n
		}
	}

	if convertedFiles == 0 {
		log.Fatalf("no output written (no convertible rows)")
	}
	log.Infof("converted %d/%d files, %d rows", convertedFiles, len(inputs), totalRows)
}

// findInputs lists turn batches under dir. Unfinished batches live in tmp/
// and search trees in trees/.
func findInputs(dir string) []string {
	inputs := make([]string, 0, 1024)
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if name := d.Name(); name == "tmp" || name == "trees" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), ".parquet") {
			inputs = append(inputs, path)
		}
		return nil
	})
	return inputs
}

func convertOne(inPath string, outPath string) (int, error) {
	inF, err := os.Open(inPath)
	if err != nil {
		return 0, err
	}
	defer inF.Close()

	reader := parquet.NewGenericReader[store.TurnRow](inF)
	defer reader.Close()

	outTmp := outPath + ".tmp"
	_ = os.Remove(outTmp)
	outF, err := os.OpenFile(outTmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	writer := parquet.NewGenericWriter[TrainingXRow](
		outF,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
	)
	writer.SetKeyValueMetadata("schema", "checkers_training_v1")

	closed := false
	defer func() {
		if !closed {
			_ = writer.Close()
			_ = outF.Close()
			_ = os.Remove(outTmp)
		}
	}()

	buf := make([]store.TurnRow, 256)
	outBuf := make([]TrainingXRow, 0, 2048)
	rowsWritten := 0

	flush := func() error {
		if len(outBuf) == 0 {
			return nil
		}
		if _, err := writer.Write(outBuf); err != nil {
			return err
		}
		rowsWritten += len(outBuf)
		outBuf = outBuf[:0]
		return nil
	}

	for {
		n, err := reader.Read(buf)
		for i := 0; i < n; i++ {
			row, ok, convErr := convertRow(buf[i])
			if convErr != nil {
				return 0, convErr
			}
			if !ok {
				continue
			}
			outBuf = append(outBuf, row)
			if len(outBuf) >= 2048 {
				if err := flush(); err != nil {
					return 0, err
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, err
		}
	}

	if err := flush(); err != nil {
		return 0, err
	}
	closed = true
	if err := writer.Close(); err != nil {
		_ = outF.Close()
		_ = os.Remove(outTmp)
		return 0, err
	}
	if err := outF.Sync(); err != nil {
		_ = outF.Close()
		_ = os.Remove(outTmp)
		return 0, err
	}
	if err := outF.Close(); err != nil {
		_ = os.Remove(outTmp)
		return 0, err
	}

	if rowsWritten == 0 {
		_ = os.Remove(outTmp)
		return 0, nil
	}
	if err := os.Rename(outTmp, outPath); err != nil {
		_ = os.Remove(outTmp)
		return 0, err
	}
	return rowsWritten, nil
}
