package database

import (
	"petpals/internal/docstore"
	"petpals/internal/models"
)

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.Account{},
		&docstore.DocumentRow{},
	}
}
