package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type probe struct {
	ID   uint   `gorm:"primaryKey"`
	Code string `gorm:"uniqueIndex"`
}

func TestOpenTranslatesDuplicateKey(t *testing.T) {
	db, err := Open(sqlite.Open("file:probe?mode=memory&cache=shared"), logger.Silent)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, MigrateModels(db, &probe{}))
	require.NoError(t, Ping(db))

	require.NoError(t, db.Create(&probe{Code: "a"}).Error)
	err = db.Create(&probe{Code: "a"}).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestMigrateModelsRequiresDB(t *testing.T) {
	assert.Error(t, MigrateModels(nil, &probe{}))
}
