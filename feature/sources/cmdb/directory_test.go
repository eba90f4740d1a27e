package cmdb

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vdi-inventory/core/inventory"
)

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.Exec(`CREATE TABLE computers (
		name TEXT, domain TEXT, description TEXT,
		created_at DATETIME, last_logon DATETIME, member_of TEXT
	)`).Error)
	require.NoError(t, db.Exec(
		`INSERT INTO computers VALUES (?, ?, ?, ?, ?, ?)`,
		"VDI001", "CORP", "VDI worker",
		time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC),
		"CN=VDI-Workers, CN=Domain Computers",
	).Error)
	return db
}

func TestDirectory_Lookup(t *testing.T) {
	dir := NewDirectory(newSQLiteDB(t))

	group, err := dir.Lookup(context.Background(), "vdi001")
	require.NoError(t, err)
	assert.Equal(t, "VDI worker", group.Description)
	assert.Equal(t, []string{"CN=VDI-Workers", "CN=Domain Computers"}, group.MemberOf)
	assert.Equal(t, 2023, group.Created.Year())
}

func TestDirectory_LookupNotFound(t *testing.T) {
	dir := NewDirectory(newSQLiteDB(t))

	_, err := dir.Lookup(context.Background(), "NOSUCH")
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

func TestDirectory_LookupQueryShape(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	rows := sqlmock.NewRows(RequiredColumns).AddRow(
		"VDI002", "CORP", "",
		time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		"",
	)
	mock.ExpectQuery("SELECT \\* FROM `computers` WHERE UPPER\\(name\\) = \\?").
		WithArgs("VDI002").
		WillReturnRows(rows)

	group, err := NewDirectory(db).Lookup(context.Background(), "VDI002")
	require.NoError(t, err)
	assert.Empty(t, group.MemberOf)
	assert.NoError(t, mock.ExpectationsWereMet())
}
