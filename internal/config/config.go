// Package config parses DecentDB's engine open options from either a
// DSN-style query string or a YAML file, using a key=value-over-defaults
// parsing style.
package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/sphildreth/decentdb-sub004/internal/dberr"
	"github.com/sphildreth/decentdb-sub004/internal/storage/pager"
	"gopkg.in/yaml.v3"
)

// WalSyncMode selects the durability mode for WAL commit writes.
type WalSyncMode string

const (
	WalSyncFull              WalSyncMode = "FULL"
	WalSyncNormal            WalSyncMode = "NORMAL"
	WalSyncTestingOnlyNoSync WalSyncMode = "TESTING_ONLY_UNSAFE_NOSYNC"
)

// OpenOptions holds the tunables an engine Open call accepts.
type OpenOptions struct {
	CachePages               int         `yaml:"cache_pages"`
	PageSize                 int         `yaml:"page_size"`
	WalSyncMode              WalSyncMode `yaml:"wal_sync_mode"`
	CheckpointBytes          int64       `yaml:"checkpoint_bytes"`
	CheckpointMs             int64       `yaml:"checkpoint_ms"`
	ReaderWarnMs             int64       `yaml:"reader_warn_ms"`
	ReaderTimeoutMs          int64       `yaml:"reader_timeout_ms"`
	ForceTruncateOnTimeout   bool        `yaml:"force_truncate_on_timeout"`
	MemoryThreshold          int64       `yaml:"memory_threshold"`
	TrigramPostingsThreshold int         `yaml:"trigram_postings_threshold"`
}

// Default returns the option set used when a caller supplies none.
func Default() OpenOptions {
	return OpenOptions{
		CachePages:               1024,
		PageSize:                 pager.DefaultPageSize,
		WalSyncMode:              WalSyncFull,
		CheckpointBytes:          64 << 20,
		CheckpointMs:             0,
		ReaderWarnMs:             0,
		ReaderTimeoutMs:          0,
		ForceTruncateOnTimeout:   false,
		MemoryThreshold:          0,
		TrigramPostingsThreshold: 5000,
	}
}

// ParseDSN parses a "?key=value&..." query string over Default().
func ParseDSN(query string) (OpenOptions, error) {
	opts := Default()
	query = strings.TrimPrefix(query, "?")
	if query == "" {
		return opts, nil
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return opts, dberr.Sql("config: parse DSN query %q: %s", query, err)
	}
	for key, vs := range values {
		if len(vs) == 0 {
			continue
		}
		if err := applyOption(&opts, key, vs[0]); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

func applyOption(opts *OpenOptions, key, value string) error {
	switch key {
	case "cache_pages", "cache_size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return dberr.Sql("config: %s must be an integer: %s", key, err)
		}
		opts.CachePages = n
	case "page_size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return dberr.Sql("config: page_size must be an integer: %s", err)
		}
		opts.PageSize = n
	case "wal_sync_mode":
		opts.WalSyncMode = WalSyncMode(strings.ToUpper(value))
	case "checkpoint_bytes":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return dberr.Sql("config: checkpoint_bytes must be an integer: %s", err)
		}
		opts.CheckpointBytes = n
	case "checkpoint_ms":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return dberr.Sql("config: checkpoint_ms must be an integer: %s", err)
		}
		opts.CheckpointMs = n
	case "reader_warn_ms":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return dberr.Sql("config: reader_warn_ms must be an integer: %s", err)
		}
		opts.ReaderWarnMs = n
	case "reader_timeout_ms":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return dberr.Sql("config: reader_timeout_ms must be an integer: %s", err)
		}
		opts.ReaderTimeoutMs = n
	case "force_truncate_on_timeout":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return dberr.Sql("config: force_truncate_on_timeout must be a bool: %s", err)
		}
		opts.ForceTruncateOnTimeout = b
	case "memory_threshold":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return dberr.Sql("config: memory_threshold must be an integer: %s", err)
		}
		opts.MemoryThreshold = n
	case "trigram_postings_threshold":
		n, err := strconv.Atoi(value)
		if err != nil {
			return dberr.Sql("config: trigram_postings_threshold must be an integer: %s", err)
		}
		opts.TrigramPostingsThreshold = n
	default:
		return dberr.Sql("config: unrecognized option %q", key)
	}
	return nil
}

// LoadYAML reads an OpenOptions document from a YAML file, defaults first
// so a file supplying only a subset of keys still produces a complete
// option set.
func LoadYAML(path string) (OpenOptions, error) {
	opts := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, dberr.Io("config: read %s: %s", path, err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, dberr.Sql("config: parse %s: %s", path, err)
	}
	return opts, nil
}

// Validate checks the combination of options that constrain each other
// (page size must be a supported power of two, sync mode must be recognized).
func Validate(opts OpenOptions) error {
	switch opts.PageSize {
	case 2048, 4096, 8192, 16384:
	default:
		return dberr.Sql("config: page_size %d is not one of 2048/4096/8192/16384", opts.PageSize)
	}
	switch opts.WalSyncMode {
	case WalSyncFull, WalSyncNormal, WalSyncTestingOnlyNoSync, "":
	default:
		return dberr.Sql("config: unrecognized wal_sync_mode %q", opts.WalSyncMode)
	}
	if opts.CachePages <= 0 {
		return dberr.Sql("config: cache_pages must be positive, got %d", opts.CachePages)
	}
	return nil
}
