package service

import (
	"github.com/expense-tracker/internal/tracker"
)

var (
	_ ExpenseService = (*tracker.Tracker)(nil)
	_ BudgetService  = (*tracker.Tracker)(nil)
	_ AlertService   = (*tracker.Tracker)(nil)
)
