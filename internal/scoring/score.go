package scoring

import "github.com/shopspring/decimal"

// TotalScore sums the user's day totals after capping each day at DailyCap,
// rounded to one decimal. Extra submissions on an already capped day never
// change the result.
func (p Policy) TotalScore(days []DayTotal) float64 {
	return round1(p.cappedSum(days))
}

func (p Policy) cappedSum(days []DayTotal) decimal.Decimal {
	total := decimal.Zero
	for _, d := range days {
		total = total.Add(decimal.Min(d.Points, p.DailyCap))
	}
	return total
}
