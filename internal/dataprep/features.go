package dataprep

import (
	"github.com/FlavioCFOliveira/frauddetection/internal/frame"
)

// EngineerEcommerce adds hour_of_day, day_of_week (Monday=0),
// time_since_signup (hours), transaction_count per user and daily_spend per
// user and purchase date.
func EngineerEcommerce(df *frame.Frame) (*frame.Frame, error) {
	purchase, err := df.Times("purchase_time")
	if err != nil {
		return nil, err
	}
	signup, err := df.Times("signup_time")
	if err != nil {
		return nil, err
	}
	users, err := df.Floats("user_id")
	if err != nil {
		return nil, err
	}
	value, err := df.Floats("purchase_value")
	if err != nil {
		return nil, err
	}

	n := df.Len()
	hour := make([]float64, n)
	weekday := make([]float64, n)
	sinceSignup := make([]float64, n)

	type userDay struct {
		user float64
		date string
	}
	txnCount := make(map[float64]float64)
	spend := make(map[userDay]float64)

	for i := 0; i < n; i++ {
		hour[i] = float64(purchase[i].Hour())
		weekday[i] = float64((int(purchase[i].Weekday()) + 6) % 7)
		sinceSignup[i] = purchase[i].Sub(signup[i]).Hours()

		txnCount[users[i]]++
		spend[userDay{users[i], purchase[i].Format("2006-01-02")}] += value[i]
	}

	count := make([]float64, n)
	daily := make([]float64, n)
	for i := 0; i < n; i++ {
		count[i] = txnCount[users[i]]
		daily[i] = spend[userDay{users[i], purchase[i].Format("2006-01-02")}]
	}

	out := df.Take(identity(n))
	for _, col := range []struct {
		name   string
		values []float64
	}{
		{"hour_of_day", hour},
		{"day_of_week", weekday},
		{"time_since_signup", sinceSignup},
		{"transaction_count", count},
		{"daily_spend", daily},
	} {
		if err := out.AddFloat(col.name, col.values); err != nil {
			return nil, err
		}
	}
	return out, nil
}
