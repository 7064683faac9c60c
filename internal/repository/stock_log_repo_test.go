package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/model"
)

func stockLogFixture() *model.StockLog {
	orderNo := "MK1"
	return &model.StockLog{
		ProductID: 1,
		Operation: model.StockOpIncrement,
		Quantity:  2,
		OrderNo:   &orderNo,
		Operator:  "order",
		Remark:    "payment cancelled",
	}
}

func TestStockLogRepository_Create(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewStockLogRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `stock_logs`").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	assert.NoError(t, repo.Create(context.Background(), stockLogFixture()))
}

func TestStockLogRepository_ListByProduct(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewStockLogRepository(db)

	rows := sqlmock.NewRows([]string{"id", "product_id", "operation", "quantity"}).
		AddRow(2, 1, model.StockOpDecrement, 3).
		AddRow(1, 1, model.StockOpSet, 10)
	mock.ExpectQuery("SELECT \\* FROM `stock_logs` WHERE product_id = \\? ORDER BY id DESC LIMIT \\?").
		WithArgs(1, 10).
		WillReturnRows(rows)

	logs, err := repo.ListByProduct(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, model.StockOpDecrement, logs[0].Operation)
}
