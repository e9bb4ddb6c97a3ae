package outlook

import (
	"context"
	"testing"

	"github.com/ajitpratap0/nebula-connectors/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumerateFoldersBreadthFirst(t *testing.T) {
	d := folder("D")
	b := folder("B", d)
	a := folder("A", b)
	c := folder("C")
	root := folder("user@example.com", a, c)

	folders, err := EnumerateFolders(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "C", "A|B", "A|B|D"}, folders.Keys())
	got, ok := folders.Get("A|B|D")
	require.True(t, ok)
	assert.Same(t, d, got)
}

func TestEnumerateFoldersLeafRoot(t *testing.T) {
	folders, err := EnumerateFolders(context.Background(), folder("root"))
	require.NoError(t, err)
	assert.Equal(t, 0, folders.Len())
}

func TestEnumerateFoldersDuplicateKeyKeepsPosition(t *testing.T) {
	first := folder("Inbox")
	second := folder("Inbox")
	root := folder("root", first, folder("Archive"), second)

	folders, err := EnumerateFolders(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, []string{"Inbox", "Archive"}, folders.Keys())
	got, _ := folders.Get("Inbox")
	assert.Same(t, second, got)
}

func TestEnumerateFoldersPropagatesListingErrors(t *testing.T) {
	broken := folder("Broken")
	broken.listErr = errors.New(errors.ErrorTypeConnection, "listing failed")
	root := folder("root", folder("Inbox"), broken)

	_, err := EnumerateFolders(context.Background(), root)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
}

func TestEnumerateFoldersHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := EnumerateFolders(ctx, folder("root", folder("Inbox")))
	assert.ErrorIs(t, err, context.Canceled)
}
