package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/NerdMeNot/rframe"
)

// tableFormat names the layout of path from its extension, looking through
// a trailing compression extension.
func tableFormat(path string) string {
	if rframe.CompressionFromPath(path) != rframe.NoCompression {
		path = strings.TrimSuffix(path, filepath.Ext(path))
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet", ".pq":
		return "parquet"
	case ".json":
		return "json"
	case ".csv":
		return "csv"
	default:
		return "tsv"
	}
}

// delimiter is ',' for .csv paths unless another delimiter is configured.
func delimiter(path string, cfg *Config) rune {
	d := []rune(cfg.IO.Delimiter)[0]
	if tableFormat(path) == "csv" && d == '\t' {
		return ','
	}
	return d
}

func loadSchema(path string) (*rframe.Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open schema %s: %w", path, err)
	}
	defer f.Close()
	return rframe.ReadSchemaYAML(f)
}

func delimitedOptions(path string, cfg *Config) (rframe.DelimitedReadOptions, error) {
	opt := rframe.DefaultDelimitedReadOptions()
	opt.Delimiter = delimiter(path, cfg)
	opt.Factors = cfg.IO.Factors
	if cfg.IO.Schema != "" {
		schema, err := loadSchema(cfg.IO.Schema)
		if err != nil {
			return opt, err
		}
		opt.Schema = schema
	}
	return opt, nil
}

// readTable loads path by format. "-" reads delimited text from stdin.
func readTable(path string, stdin io.Reader, cfg *Config) (*rframe.DataFrame, error) {
	if path == "-" {
		opt, err := delimitedOptions(path, cfg)
		if err != nil {
			return nil, err
		}
		return rframe.ReadDelimitedFromReader(stdin, opt)
	}
	switch tableFormat(path) {
	case "parquet":
		return rframe.ReadParquet(path)
	case "json":
		format, err := rframe.ParseJSONFormat(cfg.IO.JSONFormat)
		if err != nil {
			return nil, err
		}
		return rframe.ReadJSON(path, rframe.JSONReadOptions{Format: format, Factors: cfg.IO.Factors})
	default:
		opt, err := delimitedOptions(path, cfg)
		if err != nil {
			return nil, err
		}
		return rframe.ReadDelimited(path, opt)
	}
}

// writeTable writes df to path by format, or renders it to w when path is
// empty.
func writeTable(df *rframe.DataFrame, path string, w io.Writer, cfg *Config) error {
	if path == "" || path == "-" {
		_, err := fmt.Fprint(w, df.String())
		return err
	}
	switch tableFormat(path) {
	case "parquet":
		opt := rframe.DefaultParquetWriteOptions()
		opt.Compression = cfg.IO.ParquetCompression
		return df.WriteParquet(path, opt)
	case "json":
		format, err := rframe.ParseJSONFormat(cfg.IO.JSONFormat)
		if err != nil {
			return err
		}
		return df.WriteJSON(path, rframe.JSONWriteOptions{Format: format})
	default:
		opt := rframe.DefaultDelimitedWriteOptions()
		opt.Delimiter = delimiter(path, cfg)
		return df.WriteDelimited(path, opt)
	}
}
