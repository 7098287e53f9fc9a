package store

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/soyeahso/agentdesk/internal/domain"
	"github.com/soyeahso/agentdesk/internal/logging"
)

// ErrFileNotFound is returned by Export when the normalized agent file is absent.
var ErrFileNotFound = errors.New("file not found")

// FileNotFoundError carries the path that could not be found.
type FileNotFoundError struct {
	Path string
}

func (e *FileNotFoundError) Error() string { return "file not found: " + e.Path }

// Is lets errors.Is match ErrFileNotFound.
func (e *FileNotFoundError) Is(target error) bool { return target == ErrFileNotFound }

// ExportFile is a file prepared for browser download.
type ExportFile struct {
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	Base64  string `json:"base64"`
	DataURL string `json:"dataUrl"`
}

const dataURLPrefix = "data:application/json;base64,"

func newExportFile(name string, content []byte) ExportFile {
	b64 := base64.StdEncoding.EncodeToString(content)
	return ExportFile{
		Name:    name,
		Size:    int64(len(content)),
		Base64:  b64,
		DataURL: dataURLPrefix + b64,
	}
}

var exportNameStrip = regexp.MustCompile(`[^a-zA-Z0-9\s]`)

// NormalizeExportName derives the download file stem for an expert name:
// characters other than ASCII letters, digits and whitespace are dropped
// (underscores included), the rest is lowercased and spaces become
// underscores. "data_scientist" therefore exports as "datascientist".
func NormalizeExportName(expertName string) string {
	s := exportNameStrip.ReplaceAllString(expertName, "")
	return strings.ReplaceAll(strings.ToLower(s), " ", "_")
}

// AgentFiles keeps one JSON file per agent record in a directory.
//
// Write and Delete use the raw expert name as the file stem. Export
// normalizes it first, so the two only agree for names made of lowercase
// ASCII letters and digits alone. Underscores are dropped by the
// normalization and spaces become underscores.
type AgentFiles struct {
	dir string
	log *logging.Logger
}

// NewAgentFiles returns a store rooted at dir. The directory is created on
// first write.
func NewAgentFiles(dir string, log *logging.Logger) *AgentFiles {
	return &AgentFiles{dir: dir, log: log.Sub("agentfiles")}
}

// Dir returns the agents directory.
func (a *AgentFiles) Dir() string { return a.dir }

func (a *AgentFiles) path(stem string) string {
	return filepath.Join(a.dir, stem+".json")
}

// Write serializes the record as indented JSON to <dir>/<expertName>.json,
// replacing any existing file.
func (a *AgentFiles) Write(expertName, description string) error {
	if err := domain.ValidateExpertName(expertName); err != nil {
		return err
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("creating agents directory: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(domain.AgentRecord{
		ExpertName:  expertName,
		Description: description,
	}); err != nil {
		return fmt.Errorf("encoding agent %q: %w", expertName, err)
	}
	data := bytes.TrimRight(buf.Bytes(), "\n")

	path := a.path(expertName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing agent file: %w", err)
	}
	a.log.Debug().Str("path", path).Msg("agent file written")
	return nil
}

// Delete removes <dir>/<expertName>.json. A missing file is logged and
// reported as false, not as an error.
func (a *AgentFiles) Delete(expertName string) (bool, error) {
	if err := domain.ValidateExpertName(expertName); err != nil {
		return false, err
	}
	path := a.path(expertName)
	err := os.Remove(path)
	switch {
	case err == nil:
		a.log.Info().Str("path", path).Msg("agent file deleted")
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		a.log.Info().Str("path", path).Msg("agent file not found")
		return false, nil
	default:
		return false, fmt.Errorf("deleting agent file: %w", err)
	}
}

// Read loads a single record by raw expert name.
func (a *AgentFiles) Read(expertName string) (domain.AgentRecord, error) {
	if err := domain.ValidateExpertName(expertName); err != nil {
		return domain.AgentRecord{}, err
	}
	return readRecord(a.path(expertName))
}

func readRecord(path string) (domain.AgentRecord, error) {
	var rec domain.AgentRecord
	data, err := os.ReadFile(path)
	if err != nil {
		return rec, fmt.Errorf("reading agent file: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return rec, nil
}

// LoadAll reads every *.json record in the directory, ordered by file name.
// Files that fail to decode are skipped with a warning. A missing
// directory yields no records.
func (a *AgentFiles) LoadAll() ([]domain.AgentRecord, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing agents directory: %w", err)
	}

	var records []domain.AgentRecord
	for _, e := range entries {
		if !e.Type().IsRegular() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		rec, err := readRecord(filepath.Join(a.dir, e.Name()))
		if err != nil {
			a.log.Warn().Err(err).Str("file", e.Name()).Msg("skipping agent file")
			continue
		}
		if err := rec.Validate(); err != nil {
			a.log.Warn().Err(err).Str("file", e.Name()).Msg("skipping agent file with unusable expertName")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Export reads the agent file for expertName under its normalized name and
// encodes it for download.
func (a *AgentFiles) Export(expertName string) (ExportFile, error) {
	stem := NormalizeExportName(expertName)
	path := a.path(stem)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ExportFile{}, &FileNotFoundError{Path: path}
		}
		return ExportFile{}, fmt.Errorf("reading export file: %w", err)
	}
	return newExportFile(stem+".json", data), nil
}

// ListExportableFiles returns every regular file directly under dir,
// encoded for download and sorted by name. A missing directory yields an
// empty list.
func ListExportableFiles(dir string) ([]ExportFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []ExportFile{}, nil
		}
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	files := make([]ExportFile, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		files = append(files, newExportFile(e.Name(), data))
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// ListExportableFiles lists the agents directory.
func (a *AgentFiles) ListExportableFiles() ([]ExportFile, error) {
	return ListExportableFiles(a.dir)
}

// ReadFile returns the raw bytes of a single file directly under dir.
// Names containing path separators are rejected.
func ReadFile(dir, name string) ([]byte, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return nil, &FileNotFoundError{Path: filepath.Join(dir, name)}
	}
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &FileNotFoundError{Path: path}
		}
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}
