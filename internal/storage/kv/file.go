package kv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type File struct {
	folderPath string
	mu         sync.RWMutex
}

func NewFile(folderPath string) (*File, error) {
	if folderPath == "" {
		return nil, errors.New("folder path is empty")
	}

	f := &File{folderPath: filepath.Clean(folderPath)}

	if err := f.ensureFolderExists(); err != nil {
		return nil, err
	}

	return f, nil
}

func (f *File) ensureFolderExists() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := os.Stat(f.folderPath); os.IsNotExist(err) {
		if err := os.MkdirAll(f.folderPath, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func (f *File) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", ErrInvalidKey
	}
	return filepath.Join(f.folderPath, key+".json"), nil
}

func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	fullPath, err := f.path(key)
	if err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := os.ReadFile(fullPath)
	if os.IsNotExist(err) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Set writes a temp file and renames it over the key, so readers never see half a value.
func (f *File) Set(_ context.Context, key string, value []byte) error {
	fullPath, err := f.path(key)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tempPath := fullPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := file.Write(value); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write value: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempPath, fullPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

func (f *File) Delete(_ context.Context, key string) error {
	fullPath, err := f.path(key)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
