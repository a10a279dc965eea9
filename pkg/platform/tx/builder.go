package tx

import (
	"context"
	"database/sql"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
)

// Dialect is the goqu dialect used by every SQL store.
const Dialect = "postgres"

// Builder is the subset of goqu used to construct queries. Both a goqu
// database handle and a transaction handle implement it.
type Builder interface {
	From(table ...any) *goqu.SelectDataset
	Insert(table any) *goqu.InsertDataset
	Update(table any) *goqu.UpdateDataset
	Delete(table any) *goqu.DeleteDataset
}

// QueryBuilder returns a goqu builder bound to the transaction in ctx, or to
// db when none is active.
func QueryBuilder(ctx context.Context, db *sql.DB) Builder {
	if sqlTx, ok := From(ctx); ok {
		return goqu.NewTx(Dialect, sqlTx)
	}
	return goqu.Dialect(Dialect).DB(db)
}
