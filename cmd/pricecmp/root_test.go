package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/chaniweb/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogJSON = `[
	{"id": 1, "name": "Aceite Girasol 1 L", "supermarket": "Tia", "price": 3.50, "quantity": 1, "unit": "l"},
	{"id": 2, "name": "ACEITE GIRASOL 1000 ml", "supermarket": "Supermaxi", "price": 3.20, "quantity": 1000, "unit": "ml"},
	{"id": 3, "name": "Arroz Conejo 2 kg", "supermarket": "Tia", "price": 2.10, "quantity": 2, "unit": "kg"},
	{"id": 4, "name": "Arroz Conejo 2000 g", "supermarket": "Aki", "price": 2.00, "quantity": 2000, "unit": "g"},
	{"id": 5, "name": "Jabon Barra", "supermarket": "Tia", "price": 0.80, "quantity": 3, "unit": "xyz"}
]`

func writeCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(catalogJSON), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--no-color"))
	err := cmd.Execute()
	return out.String(), err
}

func TestGroupsCommand(t *testing.T) {
	path := writeCatalog(t)

	t.Run("table output", func(t *testing.T) {
		out, err := execute(t, "groups", "--catalog", path)
		require.NoError(t, err)

		assert.Contains(t, out, "|aceite girasol|volume|0")
		assert.Contains(t, out, "Supermaxi")
		assert.Contains(t, out, "3.20/l")
		assert.Contains(t, out, "1 listings need attention")
		assert.Contains(t, out, "2 groups, 1 listings excluded")
	})

	t.Run("json output", func(t *testing.T) {
		out, err := execute(t, "groups", "--catalog", path, "--json")
		require.NoError(t, err)

		var overview domain.Overview
		require.NoError(t, json.Unmarshal([]byte(out), &overview))
		assert.Len(t, overview.Groups, 2)
		assert.Equal(t, 1, overview.ExcludedCount)
	})

	t.Run("catalog flag is required", func(t *testing.T) {
		_, err := execute(t, "groups")
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := execute(t, "groups", "--catalog", filepath.Join(t.TempDir(), "none.json"))
		assert.Error(t, err)
	})
}

func TestCompareCommand(t *testing.T) {
	path := writeCatalog(t)

	t.Run("by listing", func(t *testing.T) {
		out, err := execute(t, "compare", "--catalog", path, "--listing", "3", "--json")
		require.NoError(t, err)

		var result domain.Comparison
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		assert.True(t, result.Found)
		require.Len(t, result.Groups, 1)
		assert.Equal(t, domain.ListingID("4"), result.Groups[0].Best.ID)
	})

	t.Run("by text", func(t *testing.T) {
		out, err := execute(t, "compare", "--catalog", path, "--query", "aceite")
		require.NoError(t, err)
		assert.Contains(t, out, "|aceite girasol|volume|0")
		assert.NotContains(t, out, "arroz")
	})

	t.Run("no match", func(t *testing.T) {
		out, err := execute(t, "compare", "--catalog", path, "--query", "chocolate")
		require.NoError(t, err)
		assert.Contains(t, out, "No comparable products for text:chocolate")
	})

	t.Run("query and listing are exclusive", func(t *testing.T) {
		_, err := execute(t, "compare", "--catalog", path, "--query", "aceite", "--listing", "1")
		assert.Error(t, err)
	})

	t.Run("one of query and listing is required", func(t *testing.T) {
		_, err := execute(t, "compare", "--catalog", path)
		assert.Error(t, err)
	})
}
