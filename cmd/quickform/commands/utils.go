package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/sthao/quickform/internal/config"
	"github.com/sthao/quickform/pkg/db"
	"github.com/sthao/quickform/pkg/errors"
)

// ensureDirectories creates all necessary directories for the application
func ensureDirectories(sqlitePath string, dirs ...string) error {
	// Create database directory
	if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
		return errors.Wrap(err, "failed to create database directory")
	}

	// Create FSM, export and cache directories when the command needs them
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, fmt.Sprintf("failed to create directory %s", dir))
		}
	}

	return nil
}

// openRepository prepares the database directory and opens the repository
func openRepository(cfg *config.Config) (*db.Repository, error) {
	if err := ensureDirectories(cfg.SQLitePath); err != nil {
		return nil, err
	}
	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return nil, errors.Wrap(err, "db init failed")
	}
	return repo, nil
}

// parseIDs parses entry id arguments
func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid entry id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
