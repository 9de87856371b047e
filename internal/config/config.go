package config

import (
	"bufio"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// SinkSegment writes sorted segment files to the output directory.
	SinkSegment = "segment"
	// SinkGRPC streams cells into a running LiteTable server.
	SinkGRPC = "grpc"

	defaultSeparator = "\t"
	defaultThreshold = int64(1 << 30)
)

type Config struct {
	Input     string
	OutputDir string
	Columns   string

	// Separator is the decoded single delimiter byte.
	Separator byte
	// Timestamp is the default timestamp for lines that carry none.
	Timestamp int64
	// SkipBadLines counts and skips malformed lines instead of failing.
	SkipBadLines bool
	// BatchThreshold is the per-batch memory ceiling in estimated bytes.
	BatchThreshold int64

	Sink          string
	ServerAddress string
	ServerPort    int

	Debug bool
}

// New reads a key=value configuration file. Any structural problem in the
// file or an unusable option combination fails immediately, before the
// load starts.
func New(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	config := &Config{
		SkipBadLines:   true,
		BatchThreshold: defaultThreshold,
		Timestamp:      time.Now().UnixMilli(),
		Sink:           SinkSegment,
	}

	separator := defaultSeparator
	separatorB64 := ""

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip comments and empty lines
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "input":
			config.Input = value
		case "output_dir":
			config.OutputDir = value
		case "columns":
			config.Columns = value
		case "separator":
			separator = value
		case "separator_b64":
			separatorB64 = value
		case "timestamp":
			config.Timestamp, err = strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid timestamp value: %w", err)
			}
		case "skip_bad_lines":
			config.SkipBadLines = value == "true"
		case "batch_threshold":
			config.BatchThreshold, err = strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid batch threshold value: %w", err)
			}
		case "sink":
			config.Sink = value
		case "server_address":
			config.ServerAddress = value
		case "server_port":
			config.ServerPort, err = strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("invalid server port value: %w", err)
			}
		case "debug":
			config.Debug = value == "true"
		}
	}

	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if config.Separator, err = decodeSeparator(separator, separatorB64); err != nil {
		return nil, err
	}
	if err = config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// decodeSeparator resolves the delimiter, decoding the base64 form once
// when present. A separator that does not fit a single byte is rejected.
func decodeSeparator(raw, encoded string) (byte, error) {
	if encoded != "" {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return 0, fmt.Errorf("invalid base64 separator: %w", err)
		}
		if len(decoded) != 1 {
			return 0, fmt.Errorf("separator must be a single byte, got %d", len(decoded))
		}
		return decoded[0], nil
	}
	if len(raw) != 1 {
		return 0, fmt.Errorf("separator must be a single byte, got %d", len(raw))
	}
	return raw[0], nil
}

func (c *Config) validate() error {
	var errGrp []error
	if c.Input == "" {
		errGrp = append(errGrp, errors.New("input is required"))
	}
	if c.Columns == "" {
		errGrp = append(errGrp, errors.New("columns is required"))
	}
	if c.BatchThreshold <= 0 {
		errGrp = append(errGrp, errors.New("batch threshold must be positive"))
	}

	switch c.Sink {
	case SinkSegment:
		if c.OutputDir == "" {
			errGrp = append(errGrp, errors.New("output_dir is required for the segment sink"))
		}
	case SinkGRPC:
		if c.ServerAddress == "" {
			errGrp = append(errGrp, errors.New("server_address is required for the grpc sink"))
		}
		if c.ServerPort == 0 {
			errGrp = append(errGrp, errors.New("server_port is required for the grpc sink"))
		}
	default:
		errGrp = append(errGrp, fmt.Errorf("unknown sink %q", c.Sink))
	}

	return errors.Join(errGrp...)
}
