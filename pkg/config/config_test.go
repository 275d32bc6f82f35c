package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "trie", cfg.Indexer.Kind)
	assert.Equal(t, "lower", cfg.Indexer.Normalize)
	assert.Equal(t, "document-ingest", cfg.Kafka.Topics.DocumentIngest)
	assert.Equal(t, 5*time.Minute, cfg.Redis.CacheTTL)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: 9000
indexer:
  kind: hash
  normalize: none
  maxWords: 10
redis:
  cacheTTL: 30s
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	t.Setenv("WP_SERVER_PORT", "9100")
	t.Setenv("WP_KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "hash", cfg.Indexer.Kind)
	assert.Equal(t, "none", cfg.Indexer.Normalize)
	assert.Equal(t, 10, cfg.Indexer.MaxWords)
	// untouched fields keep their defaults
	assert.Equal(t, 256, cfg.Indexer.MaxWordLength)
	assert.Equal(t, 30*time.Second, cfg.Redis.CacheTTL)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
}

func TestLoadRejectsUnknownKind(t *testing.T) {
	t.Setenv("WP_INDEXER_KIND", "btree")

	_, err := Load("")
	assert.ErrorContains(t, err, "indexer.kind")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=d sslmode=disable", p.DSN())
}
