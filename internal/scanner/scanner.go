// Package scanner finds extracted statement text files and loads their
// lines for parsing.
package scanner

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Scanner walks a directory tree and finds statement files.
type Scanner struct {
	rootDir string
}

// New creates a scanner for the given root directory.
func New(rootDir string) *Scanner {
	return &Scanner{rootDir: rootDir}
}

// ScanResult is a found statement file with path-derived metadata.
type ScanResult struct {
	Path string
	// Owner is the first directory under the root, when present.
	// Path structure: {root}/{owner?}/{period?}/file.ext
	Owner string
	// Period is the second directory when it looks like YYYY-MM.
	Period string
}

// Scan walks the directory tree and returns all statement files.
func (s *Scanner) Scan() ([]ScanResult, error) {
	var results []ScanResult

	rootDir := s.expandHome(s.rootDir)

	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !s.isStatementFile(path) {
			return nil
		}

		results = append(results, s.describe(path, rootDir))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	return results, nil
}

// isStatementFile checks if the file is an extracted statement text dump.
func (s *Scanner) isStatementFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".txt" || ext == ".cas"
}

func (s *Scanner) describe(filePath, rootDir string) ScanResult {
	relPath, err := filepath.Rel(rootDir, filePath)
	if err != nil {
		relPath = filePath
	}
	parts := strings.Split(filepath.ToSlash(relPath), "/")

	result := ScanResult{Path: filePath}
	if len(parts) >= 2 {
		result.Owner = s.normalizeOwnerName(parts[0])
	}
	if len(parts) >= 3 && s.looksLikePeriod(parts[1]) {
		result.Period = parts[1]
	}
	return result
}

// normalizeOwnerName converts a directory name to a readable name:
// "rahul_sharma" -> "Rahul Sharma".
func (s *Scanner) normalizeOwnerName(dirName string) string {
	name := strings.ReplaceAll(dirName, "_", " ")
	words := strings.Split(name, " ")
	for i, word := range words {
		if len(word) > 0 {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}
	return strings.Join(words, " ")
}

// looksLikePeriod checks if the string looks like a YYYY-MM period.
func (s *Scanner) looksLikePeriod(str string) bool {
	return len(str) >= 7 && str[4] == '-'
}

// expandHome expands ~ to the home directory.
func (s *Scanner) expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// ReadLines loads a statement file as parse input: whitespace collapsed
// within each line, empty lines dropped.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening statement file: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.Join(strings.Fields(sc.Text()), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading statement file: %w", err)
	}
	return lines, nil
}
