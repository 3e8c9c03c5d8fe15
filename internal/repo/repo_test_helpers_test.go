package repo

import (
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/whatsapp-llm-gateway/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys = ON;")
	if err := db.AutoMigrate(&domain.User{}, &domain.Conversation{}, &domain.Message{}, &domain.Analytics{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}
