//go:build !integration

package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen-cli/internal/store"
)

func TestOpenStore_SQLite(t *testing.T) {
	testConfig(t)

	st, err := openStore(context.Background(), "store")
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	jobs, err := st.ListJobs(context.Background(), store.JobFilter{})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestOpenStore_InvalidDriver(t *testing.T) {
	c := testConfig(t)
	c.Store.Driver = "mysql"

	_, err := openStore(context.Background(), "store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}

func TestInitStore_Unsupported(t *testing.T) {
	c := testConfig(t)
	c.Store.Driver = "mongo"

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestOpenStore_ExportMode(t *testing.T) {
	c := testConfig(t)
	c.Export.Format = "pdf"

	_, err := openStore(context.Background(), "export")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export.format")
}
