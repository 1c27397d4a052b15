// Package storage defines the site file-system abstraction.
package storage

// Provider is the interface for host document file operations.
// All paths are relative to the site root.
type Provider interface {
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces the file at path with content.
	Write(path string, content []byte) error
	// Exists reports whether a file exists at path.
	Exists(path string) (bool, error)
	// Abs resolves path to an absolute path inside the site root.
	Abs(path string) (string, error)
}
