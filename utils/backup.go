// Copyright (c) 2022 Whist Technologies, Inc.

package utils

import (
	"context"
	"os"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// BackupHandle restores a file to the state it was in when BackupFile was
// called.
type BackupHandle func(ctx context.Context) error

// BackupFile saves the contents of the file at path. The returned handle
// writes the saved contents back, or deletes the file if it did not exist
// when the backup was taken.
func BackupFile(fs afero.Fs, log *zap.SugaredLogger, path string) (BackupHandle, error) {
	info, err := fs.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, MakeError("couldn't stat %s: %w", path, err)
		}

		log.Debugf("File does not exist: %s", path)
		return func(context.Context) error {
			log.Debugf("Delete %s because it did not exist when backing up", path)
			err := fs.Remove(path)
			if err != nil && !os.IsNotExist(err) {
				return MakeError("couldn't delete %s: %w", path, err)
			}
			return nil
		}, nil
	}

	log.Debugf("Read file: %s", path)
	original, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, MakeError("couldn't read %s: %w", path, err)
	}
	mode := info.Mode().Perm()

	return func(context.Context) error {
		log.Debugf("Restore %s", path)
		if err := afero.WriteFile(fs, path, original, mode); err != nil {
			return MakeError("couldn't restore %s: %w", path, err)
		}
		return nil
	}, nil
}
