package backtest

import "errors"

var (
	// ErrNoActivity is returned when the athlete has nothing to backtest.
	ErrNoActivity = errors.New("athlete has no recorded activity")
	// ErrMonthPanic wraps a recovered panic from one month.
	ErrMonthPanic = errors.New("backtest month panicked")
)
