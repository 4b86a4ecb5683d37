package core

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestQueryError(t *testing.T) {
	backendErr := errors.New(`relation "profiles" does not exist`)
	err := NewQueryError("select", "profiles", backendErr)

	assert.EqualError(t, err, `query failed: select profiles: relation "profiles" does not exist`)
	assert.True(t, IsQueryError(err))
	assert.True(t, errors.Is(err, backendErr))

	wrapped := errors.Wrap(err, "listing profiles")
	assert.True(t, IsQueryError(wrapped))
	assert.True(t, IsQueryError(fmt.Errorf("report: %w", err)))
	// Cause stops at the query error so callers still see the request failure
	assert.Equal(t, err, errors.Cause(wrapped))

	assert.False(t, IsQueryError(backendErr))
	assert.False(t, IsQueryError(nil))
}

func TestArgumentError(t *testing.T) {
	err := NewArgumentError("unknown table %q", "users")
	assert.EqualError(t, err, `unknown table "users"`)
}

func TestCleanString(t *testing.T) {
	assert.Equal(t, "Ann Smith", CleanString("  Ann Smith\n"))
	assert.Equal(t, "json", CleanString(" JSON ", true))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitList(" a, ,b,"))
	assert.Nil(t, SplitList("  "))
}

func TestDBOrdering_String(t *testing.T) {
	assert.Equal(t, "name ASC", DBOrdering{Field: "name", Ascending: true}.String())
	assert.Equal(t, "id DESC", DBOrdering{Field: "id"}.String())
}
