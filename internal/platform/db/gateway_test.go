package db_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/moneta-ledger/moneta/internal/platform/db"
)

// openGateway connects to PG_DSN and applies the schema, or skips the test
// when no database is reachable.
func openGateway(t *testing.T) *db.PoolGateway {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := db.New(ctx, dsn, 4)
	if err != nil {
		t.Skipf("postgres not reachable: %v", err)
	}
	require.NoError(t, db.Migrate(ctx, pool))
	gw := db.NewGateway(pool)
	t.Cleanup(gw.Close)
	return gw
}

func TestGatewayGeneratedColumnsAndBatch(t *testing.T) {
	gw := openGateway(t)
	ctx := context.Background()
	name := "gateway-test-" + time.Now().Format("150405.000000000")

	rows, err := gw.Query(ctx, `INSERT INTO products (name, category, cost_price, retail_price, unit, supplier, stock, minimum, status)
VALUES ($1, 'Дизайн', 10, 20, 'По штучно', 'Print Co', 5, 1, 'Активен') RETURNING id`, name)
	require.NoError(t, err)
	productID, err := pgx.CollectOneRow(rows, pgx.RowTo[int64])
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = gw.Exec(context.Background(), "DELETE FROM sales WHERE product_id = $1", productID)
		_ = gw.Exec(context.Background(), "DELETE FROM products WHERE id = $1", productID)
	})

	rows, err = gw.Query(ctx, `INSERT INTO sales (product_id, product_name, quantity, unit_price, cost_price, marketplace, comment)
VALUES ($1, $2, 2, 20, 10, 'Avito', '———') RETURNING total_price, margin`, productID, name)
	require.NoError(t, err)
	type generated struct {
		TotalPrice float64 `db:"total_price"`
		Margin     float64 `db:"margin"`
	}
	got, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[generated])
	require.NoError(t, err)
	require.InDelta(t, 40.0, got.TotalPrice, 1e-9)
	require.InDelta(t, 20.0, got.Margin, 1e-9)

	require.NoError(t, gw.ExecBatch(ctx, "UPDATE products SET stock = $1 WHERE id = $2", [][]any{{4, productID}, {3, productID}}))
	rows, err = gw.Query(ctx, "SELECT stock FROM products WHERE id = $1", productID)
	require.NoError(t, err)
	stock, err := pgx.CollectOneRow(rows, pgx.RowTo[int32])
	require.NoError(t, err)
	require.EqualValues(t, 3, stock)
}
