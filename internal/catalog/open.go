package catalog

import (
	"context"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"regioncd/app/internal/db"
)

// Open opens the catalog database at path, applies the schema and returns the repository with its connection.
func Open(ctx context.Context, path string, logger *logrus.Logger) (*Repository, *gorm.DB, error) {
	database, err := db.Open(db.Options{Path: path, Logger: logger})
	if err != nil {
		return nil, nil, err
	}

	if err := Migrate(ctx, database, logger); err != nil {
		_ = db.Close(database)
		return nil, nil, err
	}

	repo, err := NewRepository(database, logger)
	if err != nil {
		_ = db.Close(database)
		return nil, nil, err
	}

	return repo, database, nil
}
