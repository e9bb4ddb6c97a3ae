package objectstore

import (
	"testing"
	"time"

	"github.com/ajitpratap0/nebula-connectors/pkg/config"
	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionPath(t *testing.T) {
	at := time.Date(2024, 5, 2, 7, 30, 0, 0, time.UTC)
	tests := []struct {
		partition Partition
		want      string
	}{
		{PartitionNone, ""},
		{PartitionHourly, "year=2024/month=05/day=02/hour=07"},
		{PartitionDaily, "year=2024/month=05/day=02"},
		{PartitionMonthly, "year=2024/month=05"},
		{PartitionYearly, "year=2024"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.partition.Path(at), string(tt.partition))
	}
}

func TestKeyBuilder(t *testing.T) {
	at := time.Date(2024, 5, 2, 7, 30, 0, 0, time.UTC)

	cfg := config.NewBaseConfig("s3", "s3")
	cfg.Properties["prefix"] = "/mail/raw/"
	cfg.Properties["partition_strategy"] = "daily"
	kb, err := KeyBuilderFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "mail/raw/year=2024/month=05/day=02/data_20240502_073000_1714635000000000000.csv.gz",
		kb.Build(at, ".csv.gz"))
	assert.Equal(t, "mail/raw/mail.parquet", kb.Join("mail.parquet"))

	cfg.Properties["key"] = "/exports/mail.csv"
	kb, err = KeyBuilderFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "exports/mail.csv", kb.Build(at, ".csv"))

	assert.Equal(t, "mail.csv", KeyBuilder{}.Join("mail.csv"))

	cfg.Properties["partition_strategy"] = "weekly"
	_, err = KeyBuilderFromConfig(cfg)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
