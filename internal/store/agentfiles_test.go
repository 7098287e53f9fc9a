package store

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/logging"
)

func testFiles(t *testing.T) *AgentFiles {
	t.Helper()
	return NewAgentFiles(filepath.Join(t.TempDir(), "agents"), logging.Nop())
}

func TestAgentFiles_WriteCreatesDirAndIndents(t *testing.T) {
	af := testFiles(t)
	require.NoError(t, af.Write("Data Scientist", "analyzes datasets"))

	data, err := os.ReadFile(filepath.Join(af.Dir(), "Data Scientist.json"))
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"expertName\": \"Data Scientist\",\n  \"description\": \"analyzes datasets\"\n}", string(data))
}

func TestAgentFiles_WriteKeepsHTMLCharacters(t *testing.T) {
	af := testFiles(t)
	require.NoError(t, af.Write("Logician", "checks a < b && c > d"))

	data, err := os.ReadFile(filepath.Join(af.Dir(), "Logician.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"description": "checks a < b && c > d"`)
	assert.NotContains(t, string(data), `\u003c`)
	assert.NotEqual(t, byte('\n'), data[len(data)-1])
}

func TestAgentFiles_RejectsNamesOutsideDir(t *testing.T) {
	root := t.TempDir()
	af := NewAgentFiles(filepath.Join(root, "agents"), logging.Nop())

	for _, name := range []string{"../escaped", "../../outside", "sub/dir", "nul\x00", ".."} {
		assert.ErrorIs(t, af.Write(name, "x"), domain.ErrInvalidName, name)

		_, err := af.Delete(name)
		assert.ErrorIs(t, err, domain.ErrInvalidName, name)

		_, err = af.Read(name)
		assert.ErrorIs(t, err, domain.ErrInvalidName, name)
	}
	assert.NoFileExists(t, filepath.Join(root, "escaped.json"))
	assert.NoDirExists(t, filepath.Join(root, "agents"))
}

func TestAgentFiles_WriteOverwrites(t *testing.T) {
	af := testFiles(t)
	require.NoError(t, af.Write("Editor", "first"))
	require.NoError(t, af.Write("Editor", "second\nline with \"quotes\""))

	rec, err := af.Read("Editor")
	require.NoError(t, err)
	assert.Equal(t, "second\nline with \"quotes\"", rec.Description)
}

func TestAgentFiles_Delete(t *testing.T) {
	af := testFiles(t)
	require.NoError(t, af.Write("Editor", "edits"))

	removed, err := af.Delete("Editor")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.NoFileExists(t, filepath.Join(af.Dir(), "Editor.json"))

	removed, err = af.Delete("Editor")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestAgentFiles_DeleteMissingDirectory(t *testing.T) {
	af := testFiles(t)
	removed, err := af.Delete("Nobody")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestAgentFiles_LoadAll(t *testing.T) {
	af := testFiles(t)

	records, err := af.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, records)

	require.NoError(t, af.Write("Zoologist", "animals"))
	require.NoError(t, af.Write("Architect", "buildings"))
	require.NoError(t, os.WriteFile(filepath.Join(af.Dir(), "broken.json"), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(af.Dir(), "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(af.Dir(), "nameless.json"), []byte(`{"description":"x"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(af.Dir(), "sneaky.json"), []byte(`{"expertName":"../sneaky","description":"x"}`), 0o644))

	records, err = af.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, []domain.AgentRecord{
		{ExpertName: "Architect", Description: "buildings"},
		{ExpertName: "Zoologist", Description: "animals"},
	}, records)
}

func TestNormalizeExportName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Data Scientist", "data_scientist"},
		{"C++ Expert!", "c_expert"},
		{"already_normal", "alreadynormal"},
		{"UX/UI  Designer", "uxui__designer"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeExportName(tt.in))
		})
	}
}

func TestAgentFiles_Export(t *testing.T) {
	af := testFiles(t)
	// Write keeps the raw stem, so Export only finds names that are
	// already in normalized form.
	require.NoError(t, af.Write("Data Scientist", "analyzes datasets"))

	_, err := af.Export("Data Scientist")
	require.ErrorIs(t, err, ErrFileNotFound)
	assert.Equal(t, "file not found: "+filepath.Join(af.Dir(), "data_scientist.json"), err.Error())

	require.NoError(t, af.Write("analyst", "numbers"))
	f, err := af.Export("Analyst")
	require.NoError(t, err)
	assert.Equal(t, "analyst.json", f.Name)

	raw, err := base64.StdEncoding.DecodeString(f.Base64)
	require.NoError(t, err)
	var rec domain.AgentRecord
	require.NoError(t, json.Unmarshal(raw, &rec))
	assert.Equal(t, "numbers", rec.Description)
	assert.Equal(t, "data:application/json;base64,"+f.Base64, f.DataURL)
	assert.Equal(t, int64(len(raw)), f.Size)
}

func TestListExportableFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), []byte(`{"b":1}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("a: 1"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	files, err := ListExportableFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.yaml", files[0].Name)
	assert.Equal(t, "b.json", files[1].Name)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte(`{"b":1}`)), files[1].Base64)

	// Listing is a pure read.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestListExportableFiles_MissingDir(t *testing.T) {
	files, err := ListExportableFiles(filepath.Join(t.TempDir(), "workflows"))
	require.NoError(t, err)
	assert.NotNil(t, files)
	assert.Empty(t, files)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "flow.json"), []byte("{}"), 0o644))

	data, err := ReadFile(dir, "flow.json")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	for _, name := range []string{"missing.json", "../flow.json", "", ".."} {
		_, err := ReadFile(dir, name)
		assert.ErrorIs(t, err, ErrFileNotFound, name)
	}
}
