// Package output serializes parsed statements to JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rumor-ml/casparse/internal/domain"
)

// WriteStatement serializes the statement to JSON with 2-space indentation.
func WriteStatement(st *domain.Statement, w io.Writer) error {
	if st == nil {
		return fmt.Errorf("statement cannot be nil")
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(st); err != nil {
		return fmt.Errorf("failed to encode statement as JSON: %w", err)
	}

	return nil
}

// WriteStatementToFile writes the statement to the given path, or to
// stdout when the path is empty.
func WriteStatementToFile(st *domain.Statement, filePath string) (err error) {
	if st == nil {
		return fmt.Errorf("statement cannot be nil")
	}

	if filePath == "" {
		return WriteStatement(st, os.Stdout)
	}

	f, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", filePath, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close output file %s: %w", filePath, closeErr)
		}
	}()

	if err = WriteStatement(st, f); err != nil {
		return fmt.Errorf("failed to write statement to %s: %w", filePath, err)
	}

	return nil
}
