package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"ripe/config"
	"ripe/native/mission"
	"ripe/native/teller"
)

func TestExampleConfigsOpenProtocol(t *testing.T) {
	cfg, err := config.Load("creditd.example.yaml")
	require.NoError(t, err)
	require.Equal(t, config.BackendLevelDB, cfg.Storage.Backend)

	params, err := mission.LoadFile(cfg.Protocol.MissionFile)
	require.NoError(t, err)
	require.Len(t, params.Assets, 4)

	prices, err := cfg.Protocol.SeedPrices()
	require.NoError(t, err)

	cfg.Storage = config.StorageConfig{Backend: config.BackendBolt, DataDir: t.TempDir()}
	db, err := openStorage(cfg.Storage)
	require.NoError(t, err)
	defer db.Close()

	tl, err := teller.Open(teller.Options{DB: db, Mission: *params, Namespace: cfg.Protocol.Namespace, Prices: prices})
	require.NoError(t, err)
	require.True(t, tl.IsTrusted(params.TrustedCallers[0]))
}

func TestOpenStorageBackends(t *testing.T) {
	dir := t.TempDir()
	for _, backend := range []string{config.BackendMemory, config.BackendLevelDB, config.BackendBolt} {
		db, err := openStorage(config.StorageConfig{Backend: backend, DataDir: filepath.Join(dir, backend)})
		require.NoError(t, err, backend)
		require.NoError(t, db.Put([]byte("k"), []byte("v")))
		got, err := db.Get([]byte("k"))
		require.NoError(t, err)
		require.Equal(t, []byte("v"), got)
		db.Close()
	}
}
