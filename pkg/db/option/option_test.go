package option

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type row struct {
	ID    string `gorm:"primaryKey"`
	Score int
}

func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&row{}))
	require.NoError(t, db.Create([]*row{{ID: "a", Score: 1}, {ID: "b", Score: 5}, {ID: "c", Score: 9}}).Error)
	return db
}

func TestApplyOperator(t *testing.T) {
	db := newDB(t)

	var rows []row
	require.NoError(t, db.Scopes(ApplyOperator(Condition{Field: "score", Operator: GT, Value: 1})).Find(&rows).Error)
	require.Len(t, rows, 2)
}

func TestEqKeepsZeroValues(t *testing.T) {
	db := newDB(t)

	var rows []row
	require.NoError(t, db.Where(&row{}).Scopes(Eq("id", "")).Find(&rows).Error)
	require.Empty(t, rows)

	require.NoError(t, db.Where(&row{}).Scopes(Eq("id", "b")).Find(&rows).Error)
	require.Len(t, rows, 1)
}

func TestApplyOperatorRejectsExpression(t *testing.T) {
	db := newDB(t)

	var rows []row
	require.NoError(t, db.Scopes(ApplyOperator(Condition{Field: "1=1 OR score", Operator: GT, Value: 100})).Find(&rows).Error)
	require.Len(t, rows, 3)
}

func TestWithSortByAndLimit(t *testing.T) {
	db := newDB(t)

	var rows []row
	err := db.Scopes(
		WithSortBy(QuerySortBy{SortBy: "score", OrderBy: "DESC", Allow: map[string]bool{"score": true}}),
		WithLimit(1),
	).Find(&rows).Error
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "c", rows[0].ID)
}
