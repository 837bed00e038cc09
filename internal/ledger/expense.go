package ledger

import (
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/moneta-ledger/moneta/internal/platform/db"
	"github.com/moneta-ledger/moneta/internal/store"
)

const expenseColumns = "id, expense_date, category, description, amount, comment"

// Expense statements.
const (
	SelectExpenseByID   = "SELECT " + expenseColumns + " FROM expenses WHERE id = $1"
	SelectExpenses      = "SELECT " + expenseColumns + " FROM expenses ORDER BY id"
	SelectExpensesSince = "SELECT " + expenseColumns + " FROM expenses WHERE expense_date > $1 ORDER BY id"
	InsertExpense       = `INSERT INTO expenses (category, description, amount, comment)
VALUES ($1, $2, $3, $4)
RETURNING id, expense_date`
	UpdateExpense = `UPDATE expenses
SET expense_date = $1, category = $2, description = $3, amount = $4, comment = $5
WHERE id = $6`
)

// ExpenseColumns lists the columns every expense select returns.
var ExpenseColumns = []string{"id", "expense_date", "category", "description", "amount", "comment"}

// ExpenseInsertColumns lists the columns InsertExpense returns.
var ExpenseInsertColumns = []string{"id", "expense_date"}

type expenseRow struct {
	ID          int64     `db:"id"`
	ExpenseDate time.Time `db:"expense_date"`
	Category    string    `db:"category"`
	Description string    `db:"description"`
	Amount      float64   `db:"amount"`
	Comment     string    `db:"comment"`
}

type expenseAdapter struct{}

func (expenseAdapter) Name() string { return "expenses" }

func (expenseAdapter) Statements() store.Statements {
	return store.Statements{
		SelectByID:  SelectExpenseByID,
		SelectAll:   SelectExpenses,
		SelectSince: SelectExpensesSince,
		Insert:      InsertExpense,
		Update:      UpdateExpense,
	}
}

func (expenseAdapter) Key(e *Expense) int64 { return e.ID }

func (expenseAdapter) Scan(row pgx.CollectableRow) (*Expense, error) {
	r, err := pgx.RowToAddrOfStructByName[expenseRow](row)
	if err != nil {
		return nil, err
	}
	return &Expense{
		ID:          r.ID,
		Date:        r.ExpenseDate,
		Category:    ExpenseCategory(r.Category),
		Description: r.Description,
		Amount:      r.Amount,
		Comment:     r.Comment,
	}, nil
}

func (expenseAdapter) InsertArgs(e *Expense) []any {
	return []any{string(e.Category), e.Description, e.Amount, e.Comment}
}

func (expenseAdapter) UpdateArgs(e *Expense) []any {
	return []any{e.Date, string(e.Category), e.Description, e.Amount, e.Comment, e.ID}
}

func (expenseAdapter) Finalize(e *Expense, row pgx.CollectableRow) error {
	var (
		id   int64
		date time.Time
	)
	if err := row.Scan(&id, &date); err != nil {
		return err
	}
	e.ID, e.Date = id, date
	return nil
}

// ExpenseRepository stores expenses and answers the expense aggregates.
type ExpenseRepository struct {
	*store.Repository[int64, Expense]
	gw db.Gateway
}

// NewExpenseRepository builds the expense repository.
func NewExpenseRepository(gw db.Gateway, opts store.Options) *ExpenseRepository {
	return &ExpenseRepository{Repository: store.New[int64, Expense](gw, expenseAdapter{}, opts), gw: gw}
}
