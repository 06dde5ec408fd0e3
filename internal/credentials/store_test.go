// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package credentials

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeFactory func(t *testing.T) Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"file": func(t *testing.T) Store {
			s, err := OpenFileStore(filepath.Join(t.TempDir(), "nested", "credentials.json"))
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSqliteStore(filepath.Join(t.TempDir(), "credentials.sqlite"))
			require.NoError(t, err)
			return s
		},
		"badger": func(t *testing.T) Store {
			s, err := OpenBadgerStore(filepath.Join(t.TempDir(), "badger"))
			require.NoError(t, err)
			return s
		},
		"redis": func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			return newRedisStore(client, "test", zerolog.Nop())
		},
	}
}

func TestStoreContract(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			defer s.Close()

			_, err := s.Get(ctx, AccessTokenKey)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Set(ctx, AccessTokenKey, "a1"))
			v, err := s.Get(ctx, AccessTokenKey)
			require.NoError(t, err)
			assert.Equal(t, "a1", v)

			require.NoError(t, s.Set(ctx, AccessTokenKey, "a2"))
			v, err = s.Get(ctx, AccessTokenKey)
			require.NoError(t, err)
			assert.Equal(t, "a2", v)

			require.NoError(t, s.Delete(ctx, AccessTokenKey, "missing"))
			_, err = s.Get(ctx, AccessTokenKey)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestPairHelpers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	p, err := Load(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, Pair{}, p)

	require.NoError(t, Save(ctx, s, Pair{AccessToken: "acc", RefreshToken: "ref"}))
	p, err = Load(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, Pair{AccessToken: "acc", RefreshToken: "ref"}, p)

	require.NoError(t, SaveAccess(ctx, s, "acc2"))
	access, err := Access(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, "acc2", access)
	refresh, err := Refresh(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, "ref", refresh)

	require.NoError(t, Clear(ctx, s))
	p, err = Load(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, Pair{}, p)
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.json")

	s1, err := OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, Save(ctx, s1, Pair{AccessToken: "acc", RefreshToken: "ref"}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	s2, err := OpenFileStore(path)
	require.NoError(t, err)
	p, err := Load(ctx, s2)
	require.NoError(t, err)
	assert.Equal(t, "acc", p.AccessToken)
	assert.Equal(t, "ref", p.RefreshToken)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{not-json"), 0o600))

	s, err := OpenFileStore(path)
	require.NoError(t, err)
	_, err = s.Get(context.Background(), AccessTokenKey)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, err = Access(context.Background(), s)
	assert.Error(t, err)
}

func TestSqliteStore_Check(t *testing.T) {
	s, err := OpenSqliteStore(filepath.Join(t.TempDir(), "credentials.sqlite"))
	require.NoError(t, err)
	defer s.Close()

	issues, err := s.Check(context.Background(), true)
	require.NoError(t, err)
	assert.Nil(t, issues)
}

func TestRedisStore_Namespaced(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := newRedisStore(client, "device-7", zerolog.Nop())

	require.NoError(t, s.Set(context.Background(), RefreshTokenKey, "r"))
	got, err := mr.Get("device-7:" + RefreshTokenKey)
	require.NoError(t, err)
	assert.Equal(t, "r", got)
}

func TestOpen_Backends(t *testing.T) {
	s, err := Open(Options{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = Open(Options{Path: filepath.Join(t.TempDir(), "c.json")})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	mr := miniredis.RunT(t)
	s, err = Open(Options{Backend: "redis", Redis: RedisConfig{Addr: mr.Addr()}})
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(Options{Backend: "etcd"})
	assert.Error(t, err)
}
