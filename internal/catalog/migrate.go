package catalog

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Migrate applies the catalog schema using Gorm's AutoMigrate.
func Migrate(ctx context.Context, db *gorm.DB, logger *logrus.Logger) error {
	if db == nil {
		return eris.New("gorm DB is required")
	}

	logFields := logrus.Fields{"component": "catalog.migrate"}
	if logger != nil {
		logger.WithFields(logFields).Debug("applying catalog schema")
	}

	if err := db.WithContext(ctx).AutoMigrate(&District{}); err != nil {
		if logger != nil {
			logger.WithFields(logFields).WithField("error", err.Error()).Error("catalog schema migration failed")
		}
		return eris.Wrap(err, "auto migrating catalog schema")
	}

	return nil
}
