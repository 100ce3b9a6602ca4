package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgbridge/pkg/logger"
)

func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := kv.Get(ctx, "tgToken")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "tgToken", "abc"))
	require.NoError(t, kv.Set(ctx, "channel:-100", `{"phase":"ready"}`))

	v, ok, err := kv.Get(ctx, "tgToken")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)

	exists, err := kv.Exists(ctx, "channel:-100")
	require.NoError(t, err)
	assert.True(t, exists)

	keys, err := kv.Keys(ctx, "channel:")
	require.NoError(t, err)
	assert.Equal(t, []string{"channel:-100"}, keys)

	require.NoError(t, kv.Delete(ctx, "tgToken"))
	require.NoError(t, kv.Delete(ctx, "tgToken"))
	_, ok, err = kv.Get(ctx, "tgToken")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore(t *testing.T) {
	exerciseKV(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "state.json")
	store, err := NewFileStore(logger.NewNop(), path)
	require.NoError(t, err)
	exerciseKV(t, store)
	require.NoError(t, store.Close())
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()

	first, err := NewFileStore(logger.NewNop(), path)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "telegramBotToken", "123:abc"))

	second, err := NewFileStore(logger.NewNop(), path)
	require.NoError(t, err)
	v, ok, err := second.Get(ctx, "telegramBotToken")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "123:abc", v)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0600))

	_, err := NewFileStore(logger.NewNop(), path)
	assert.Error(t, err)
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryStore()

	type record struct {
		Phase string `json:"phase"`
		Tries int    `json:"tries"`
	}
	require.NoError(t, SetJSON(ctx, kv, "r", record{Phase: "failed", Tries: 3}))

	var got record
	ok, err := GetJSON(ctx, kv, "r", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, record{Phase: "failed", Tries: 3}, got)

	ok, err = GetJSON(ctx, kv, "missing", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TGBRIDGE_TEST_REDIS")
	if addr == "" {
		t.Skip("TGBRIDGE_TEST_REDIS not set")
	}
	store, err := NewRedisStore(context.Background(), logger.NewNop(), &RedisStoreConfig{
		Addr:   addr,
		Prefix: "tgbridge-test:" + t.Name() + ":",
	})
	require.NoError(t, err)
	defer store.Close()
	exerciseKV(t, store)
}

func TestNewKVUnknownBackend(t *testing.T) {
	_, err := NewKV(context.Background(), logger.NewNop(), &Config{Backend: "etcd"})
	assert.Error(t, err)
}
