package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultEngineTable(t *testing.T) {
	table := DefaultEngineTable()

	assert.Equal(t, []EngineType{EngineBrowser, EngineWeb, EngineWebAsync}, table.Types())

	spec, ok := table.Lookup(EngineWebAsync)
	require.True(t, ok)
	assert.Equal(t, ModeCooperative, spec.Mode)
	assert.Equal(t, EngineWebAsync, spec.HandleKey)

	spec, ok = table.Lookup(EngineBrowser)
	require.True(t, ok)
	assert.Equal(t, ModeBlocking, spec.Mode)
}

func TestEngineTable_ParseCaseInsensitive(t *testing.T) {
	table := DefaultEngineTable()

	for _, name := range []string{"browser", "BROWSER", " Browser ", "Web_Async"} {
		et, err := table.Parse(name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, et)
	}

	_, err := table.Parse("selenium")
	assert.ErrorIs(t, err, ErrInvalidEngineType)
}

func TestEngineTable_Resolve(t *testing.T) {
	table := DefaultEngineTable()

	et, err := table.Resolve(EngineWeb)
	require.NoError(t, err)
	assert.Equal(t, EngineWeb, et)

	et, err = table.Resolve("WEB")
	require.NoError(t, err)
	assert.Equal(t, EngineWeb, et)

	et, err = table.Resolve(EngineType("Browser"))
	require.NoError(t, err)
	assert.Equal(t, EngineBrowser, et)

	_, err = table.Resolve(42)
	assert.ErrorIs(t, err, ErrInvalidEngineType)
}

func TestEngineTable_Register(t *testing.T) {
	table := DefaultEngineTable()

	require.NoError(t, table.Register(EngineSpec{Type: "grpc", Mode: ModeCooperative}))
	spec, ok := table.Lookup("grpc")
	require.True(t, ok)
	assert.Equal(t, EngineType("grpc"), spec.HandleKey)

	err := table.Register(EngineSpec{Type: "  "})
	assert.ErrorIs(t, err, ErrInvalidEngineType)
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "blocking", ModeBlocking.String())
	assert.Equal(t, "cooperative", ModeCooperative.String())
	assert.Equal(t, "unknown", Mode(9).String())
}
