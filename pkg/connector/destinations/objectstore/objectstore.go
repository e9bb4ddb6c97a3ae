// Package objectstore holds the object key layout shared by the S3 and GCS
// destinations.
package objectstore

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
)

// Partition selects the time based directory an object is written under.
type Partition string

const (
	PartitionNone    Partition = "none"
	PartitionHourly  Partition = "hourly"
	PartitionDaily   Partition = "daily"
	PartitionMonthly Partition = "monthly"
	PartitionYearly  Partition = "yearly"
)

// ParsePartition parses a partition strategy. An empty string means none.
func ParsePartition(s string) (Partition, error) {
	switch p := Partition(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PartitionNone, nil
	case PartitionNone, PartitionHourly, PartitionDaily, PartitionMonthly, PartitionYearly:
		return p, nil
	default:
		return "", fmt.Errorf("unsupported partition strategy: %s", s)
	}
}

// Path returns the hive style directory for t, e.g. year=2024/month=05/day=02.
func (p Partition) Path(t time.Time) string {
	t = t.UTC()
	switch p {
	case PartitionHourly:
		return fmt.Sprintf("year=%d/month=%02d/day=%02d/hour=%02d", t.Year(), t.Month(), t.Day(), t.Hour())
	case PartitionDaily:
		return fmt.Sprintf("year=%d/month=%02d/day=%02d", t.Year(), t.Month(), t.Day())
	case PartitionMonthly:
		return fmt.Sprintf("year=%d/month=%02d", t.Year(), t.Month())
	case PartitionYearly:
		return fmt.Sprintf("year=%d", t.Year())
	default:
		return ""
	}
}

// KeyBuilder names uploaded objects. A fixed Key wins over the generated
// prefix/partition/data_<timestamp> layout.
type KeyBuilder struct {
	Prefix    string
	Partition Partition
	Key       string
}

// KeyBuilderFromConfig reads the key, prefix and partition_strategy properties.
func KeyBuilderFromConfig(cfg *config.BaseConfig) (KeyBuilder, error) {
	p, err := ParsePartition(cfg.Property("partition_strategy", ""))
	if err != nil {
		return KeyBuilder{}, errors.Wrap(err, errors.ErrorTypeConfig, "invalid partition_strategy property")
	}
	return KeyBuilder{
		Prefix:    strings.Trim(cfg.Property("prefix", ""), "/"),
		Partition: p,
		Key:       strings.TrimPrefix(cfg.Property("key", ""), "/"),
	}, nil
}

// Build returns the object key for a file written at now with extension ext.
func (k KeyBuilder) Build(now time.Time, ext string) string {
	if k.Key != "" {
		return k.Key
	}
	now = now.UTC()
	name := fmt.Sprintf("data_%s_%d%s", now.Format("20060102_150405"), now.UnixNano(), ext)
	return k.Join(k.Partition.Path(now), name)
}

// Join places name under the prefix.
func (k KeyBuilder) Join(elem ...string) string {
	return strings.TrimPrefix(path.Join(append([]string{k.Prefix}, elem...)...), "/")
}

// Uploader copies a local file to object storage and returns its URI.
type Uploader interface {
	UploadFile(ctx context.Context, localPath, key string) (string, error)
}
