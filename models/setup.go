package models

import (
	"fmt"
	"net/url"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// ConnectDataBase Open the database behind the dialector and migrate all tables
func ConnectDataBase(dialector gorm.Dialector) error {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("cannot connect %s database: %w", dialector.Name(), err)
	}
	log.Info(fmt.Sprintf("Connected %s database", dialector.Name()))

	if err := Migrate(db); err != nil {
		return err
	}
	DB = db
	return nil
}

// Migrate Create or update the tables of every model
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&User{},
		&Role{},
		&ImageSet{},
		&Image{},
		&Campaign{},
		&CampaignImage{},
		&Object{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// OpenForTesting Open a private in-memory sqlite database with all tables migrated.
// The pool is limited to one connection so that every query sees the same memory database.
func OpenForTesting(name string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", url.QueryEscape(name))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
