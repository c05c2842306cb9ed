package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathValidatorResolvesInsideRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("x"), 0644))

	v, err := NewPathValidator(root)
	require.NoError(t, err)

	path, err := v.Resolve("index.html")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(v.Root(), "index.html"), path)
}

func TestPathValidatorNeutralizesDotDot(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "root")
	require.NoError(t, os.MkdirAll(root, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "secret.txt"), []byte("psst"), 0644))

	v, err := NewPathValidator(root)
	require.NoError(t, err)

	// Rooted Clean collapses ".." segments before joining, so a
	// traversal attempt can never address the sibling file.
	for _, rel := range []string{"../secret.txt", "a/../../secret.txt", "../../secret.txt"} {
		path, rerr := v.Resolve(rel)
		if rerr != nil {
			continue
		}
		assert.Equal(t, filepath.Join(v.Root(), "secret.txt"), path, rel)
	}
}

func TestPathValidatorRejectsSymlinkEscape(t *testing.T) {
	base := t.TempDir()
	root := filepath.Join(base, "root")
	require.NoError(t, os.MkdirAll(root, 0755))
	secret := filepath.Join(base, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("psst"), 0644))
	if err := os.Symlink(secret, filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	v, err := NewPathValidator(root)
	require.NoError(t, err)
	_, err = v.Resolve("link.txt")
	require.Error(t, err)
}

func TestPathValidatorRejectsNullByte(t *testing.T) {
	v, err := NewPathValidator(t.TempDir())
	require.NoError(t, err)
	_, err = v.Resolve("a\x00b")
	require.Error(t, err)
}

func TestGetAPIKeyPrecedence(t *testing.T) {
	t.Setenv("APPFORGE_TEST_KEY_A", "from-env-a")
	t.Setenv("APPFORGE_TEST_KEY_B", "from-env-b")

	key := GetAPIKey([]string{"APPFORGE_TEST_KEY_A", "APPFORGE_TEST_KEY_B"}, "from-config")
	assert.Equal(t, "from-env-a", key.Value)
	assert.Equal(t, KeySourceEnvironment, key.Source)

	t.Setenv("APPFORGE_TEST_KEY_A", "")
	key = GetAPIKey([]string{"APPFORGE_TEST_KEY_A", "APPFORGE_TEST_KEY_B"}, "from-config")
	assert.Equal(t, "from-env-b", key.Value)

	t.Setenv("APPFORGE_TEST_KEY_B", "")
	key = GetAPIKey([]string{"APPFORGE_TEST_KEY_A", "APPFORGE_TEST_KEY_B"}, "from-config")
	assert.Equal(t, "from-config", key.Value)
	assert.Equal(t, KeySourceConfig, key.Source)

	key = GetAPIKey([]string{"APPFORGE_TEST_KEY_A"}, "")
	assert.False(t, key.IsSet())
	assert.Equal(t, KeySourceNotSet, key.Source)
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "sk-1*********-xyz", MaskKey("sk-1234567890-xyz"))
	assert.Equal(t, "*****", MaskKey("short"))
	assert.Equal(t, "(not set)", MaskKey(""))
}

func TestValidateKeyFormat(t *testing.T) {
	assert.NoError(t, ValidateKeyFormat("sk-a-perfectly-plausible-key"))
	assert.Error(t, ValidateKeyFormat("short"))
	assert.Error(t, ValidateKeyFormat("your-api-key-here"))
	assert.Error(t, ValidateKeyFormat(""))
}
