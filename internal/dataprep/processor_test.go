package dataprep

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fraudCSV = `user_id,signup_time,purchase_time,purchase_value,device_id,source,browser,sex,age,ip_address,class
22058,2015-02-24 22:55:49,2015-04-18 02:47:11,34,QVPSPJUOCKZAR,SEO,Chrome,M,39,732758368.79972,0
333320,2015-06-07 20:39:50,2015-06-08 01:38:54,16,EOGFQPIZPYXFZ,Ads,Chrome,F,53,350311387.865908,0
333320,2015-06-07 20:39:50,2015-06-08 03:38:54,20,EOGFQPIZPYXFZ,Ads,Chrome,F,53,350311387.865908,1
22058,2015-02-24 22:55:49,2015-04-18 02:47:11,34,QVPSPJUOCKZAR,SEO,Chrome,M,39,732758368.79972,0
1359,2015-01-01 18:52:44,,15,YSSKYOSJHPPLJ,SEO,Opera,M,53,2621473820.11095,1
,2015-06-07 20:39:50,2015-06-08 02:10:00,80,EOGFQPIZPYXFZ,Ads,Chrome,F,53,350311387.865908,1
`

const ipCSV = `lower_bound_ip_address,upper_bound_ip_address,country
350000000.0,350999999,Japan
732000000.0,732999999,United States
`

const creditCSV = `Time,V1,V2,Amount,Class
0,-1.35,-0.07,149.62,"0"
0,1.19,0.26,2.69,"0"
0,-1.35,-0.07,149.62,"0"
1,-1.36,-1.34,378.66,"1"
`

func writeFixtures(t *testing.T) Paths {
	t.Helper()
	dir := t.TempDir()
	paths := Paths{
		FraudData:  filepath.Join(dir, "fraud_data.csv"),
		IPData:     filepath.Join(dir, "ipaddress_to_country.csv"),
		CreditData: filepath.Join(dir, "creditcard.csv"),
	}
	require.NoError(t, os.WriteFile(paths.FraudData, []byte(fraudCSV), 0644))
	require.NoError(t, os.WriteFile(paths.IPData, []byte(ipCSV), 0644))
	require.NoError(t, os.WriteFile(paths.CreditData, []byte(creditCSV), 0644))
	return paths
}

func TestProcessEcommerce(t *testing.T) {
	p := NewProcessor(writeFixtures(t), nil)

	data, err := p.ProcessEcommerce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Ecommerce, data.Kind)
	assert.Equal(t, 6, data.Raw.Len())
	require.Equal(t, 3, data.Processed.Len(), "duplicate, missing-time and missing-user rows are dropped")
	assert.Equal(t, 2, data.IPMapping.Len())

	df := data.Processed
	countries, err := df.Strings("country")
	require.NoError(t, err)
	assert.Equal(t, []string{"United States", "Japan", "Japan"}, countries)

	ips, _ := df.Floats("ip_address")
	assert.Equal(t, 732758368.0, ips[0])

	hour, _ := df.Floats("hour_of_day")
	assert.Equal(t, []float64{2, 1, 3}, hour)

	weekday, _ := df.Floats("day_of_week")
	assert.Equal(t, []float64{5, 0, 0}, weekday, "Saturday=5, Monday=0")

	since, _ := df.Floats("time_since_signup")
	assert.InDelta(t, 1251.856111, since[0], 1e-5)
	assert.InDelta(t, 4.984444, since[1], 1e-5)

	count, _ := df.Floats("transaction_count")
	assert.Equal(t, []float64{1, 2, 2}, count)

	daily, _ := df.Floats("daily_spend")
	assert.Equal(t, []float64{34, 36, 36}, daily)

	X, y, err := data.Descriptor().Split(df)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 1}, y)
	assert.Equal(t, []string{
		"purchase_value", "source", "browser", "sex", "age", "country",
		"hour_of_day", "day_of_week", "time_since_signup", "transaction_count", "daily_spend",
	}, X.Names())
}

func TestProcessCredit(t *testing.T) {
	p := NewProcessor(writeFixtures(t), nil)

	data, err := p.Process(context.Background(), Credit)
	require.NoError(t, err)
	assert.Equal(t, 4, data.Raw.Len())
	assert.Equal(t, 3, data.Processed.Len())
	assert.Nil(t, data.IPMapping)

	X, y, err := data.Descriptor().Split(data.Processed)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 1}, y)
	assert.Equal(t, []string{"Time", "V1", "V2", "Amount"}, X.Names())
}

func TestProcessMissingFile(t *testing.T) {
	paths := writeFixtures(t)
	paths.IPData = filepath.Join(t.TempDir(), "absent.csv")

	_, err := NewProcessor(paths, nil).ProcessEcommerce(context.Background())
	assert.Error(t, err)
}

func TestProcessCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewProcessor(writeFixtures(t), nil).ProcessCredit(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("credit")
	require.NoError(t, err)
	assert.Equal(t, Credit, k)

	_, err = ParseKind("retail")
	assert.Error(t, err)
}

func TestSplitRejectsNonBinaryTarget(t *testing.T) {
	data, err := NewProcessor(writeFixtures(t), nil).ProcessCredit(context.Background())
	require.NoError(t, err)

	require.NoError(t, data.Processed.AddFloat("Class", []float64{0, 2, 1}))
	_, _, err = data.Descriptor().Split(data.Processed)
	assert.Error(t, err)
}
