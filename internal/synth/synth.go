// Package synth generates synthetic versions of the three input files.
//
// The data carries a learnable fraud signal. E-commerce fraud buys within
// seconds of signing up, at night, from devices and accounts shared with
// other fraudulent purchases. Credit card fraud shifts a handful of the
// principal components and the amount distribution.
package synth

import (
	"encoding/csv"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/FlavioCFOliveira/frauddetection/internal/frame"
	"github.com/FlavioCFOliveira/frauddetection/internal/ipgeo"
)

// File names written under <dir>/raw.
const (
	FraudDataFile  = "fraud_data.csv"
	IPDataFile     = "ipaddress_to_country.csv"
	CreditDataFile = "creditcard.csv"
)

// Options controls the size and shape of the generated data.
type Options struct {
	Rows               int
	Seed               int64
	EcommerceFraudRate float64
	CreditFraudRate    float64
	// DuplicateEvery copies the previous credit row at every n-th row.
	// Zero disables duplicates.
	DuplicateEvery int
}

// DefaultOptions returns 10000 rows per dataset with a 10% e-commerce and
// 2% credit fraud rate.
func DefaultOptions() Options {
	return Options{
		Rows:               10000,
		Seed:               42,
		EcommerceFraudRate: 0.1,
		CreditFraudRate:    0.02,
		DuplicateEvery:     200,
	}
}

// Files holds the paths written by Write.
type Files struct {
	FraudData  string
	IPData     string
	CreditData string
}

// Purchase is one row of fraud_data.csv.
type Purchase struct {
	UserID        int
	SignupTime    time.Time
	PurchaseTime  time.Time
	PurchaseValue float64
	DeviceID      string
	Source        string
	Browser       string
	Sex           string
	Age           int
	IPAddress     float64
	Class         int
}

// CardTransaction is one row of creditcard.csv.
type CardTransaction struct {
	Time   float64
	V      [28]float64
	Amount float64
	Class  int
}

var (
	countries = []string{
		"United States", "China", "Japan", "United Kingdom", "Korea Republic of",
		"Germany", "France", "Canada", "Brazil", "Italy",
	}
	sources  = []string{"SEO", "Ads", "Direct"}
	browsers = []string{"Chrome", "IE", "Safari", "FireFox", "Opera"}
	epoch    = time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
)

const (
	ipStart     = 16777216
	ipEnd       = 3758096383
	rangeCount  = 60
	rangeGapMod = 7
)

// IPRanges returns the synthetic range table. Every seventh slot of the
// address space is left unassigned so lookups can miss.
func IPRanges() []ipgeo.Range {
	width := int64(ipEnd-ipStart) / rangeCount
	ranges := make([]ipgeo.Range, 0, rangeCount)
	for i := int64(0); i < rangeCount; i++ {
		if i%rangeGapMod == rangeGapMod-1 {
			continue
		}
		lower := ipStart + i*width
		ranges = append(ranges, ipgeo.Range{
			Lower:   lower,
			Upper:   lower + width - 1,
			Country: countries[int(i)%len(countries)],
		})
	}
	return ranges
}

func stride(rate float64) int {
	if rate <= 0 {
		return math.MaxInt
	}
	return max(2, int(math.Round(1/rate)))
}

func deviceID(rng *rand.Rand) string {
	b := make([]byte, 13)
	for i := range b {
		b[i] = byte('A' + rng.Intn(26))
	}
	return string(b)
}

// Purchases generates the e-commerce transactions. Every stride-th row is
// fraudulent so small samples still contain both classes.
func Purchases(opts Options) []Purchase {
	rng := rand.New(rand.NewSource(opts.Seed))
	every := stride(opts.EcommerceFraudRate)

	nFraud := (opts.Rows + every - 1) / every
	fraudDevices := make([]string, max(1, nFraud/4))
	for i := range fraudDevices {
		fraudDevices[i] = deviceID(rng)
	}
	fraudUsers := max(1, nFraud/2)

	ranges := IPRanges()
	out := make([]Purchase, opts.Rows)
	for i := range out {
		isFraud := i%every == 0

		p := Purchase{
			UserID:        1000 + i,
			PurchaseValue: float64(9 + rng.Intn(146)),
			DeviceID:      deviceID(rng),
			Source:        sources[rng.Intn(len(sources))],
			Browser:       browsers[rng.Intn(len(browsers))],
			Sex:           []string{"M", "F"}[rng.Intn(2)],
			Age:           18 + rng.Intn(59),
		}

		day := epoch.AddDate(0, 0, rng.Intn(120))
		if isFraud {
			p.UserID = 900000 + rng.Intn(fraudUsers)
			p.DeviceID = fraudDevices[rng.Intn(len(fraudDevices))]
			p.SignupTime = day.Add(time.Duration(rng.Intn(5*3600)) * time.Second)
			p.PurchaseTime = p.SignupTime.Add(time.Duration(1+rng.Intn(60)) * time.Second)
			p.Class = 1
		} else {
			p.SignupTime = day.Add(time.Duration(8*3600+rng.Intn(14*3600)) * time.Second)
			p.PurchaseTime = p.SignupTime.Add(time.Duration(86400+rng.Intn(90*86400)) * time.Second)
			if h := p.PurchaseTime.Hour(); h < 6 {
				p.PurchaseTime = p.PurchaseTime.Add(time.Duration(8+rng.Intn(10)) * time.Hour)
			}
		}

		// a slice of the traffic comes from unassigned addresses
		if rng.Intn(20) == 0 {
			p.IPAddress = float64(ipEnd) + rng.Float64()*1e8
		} else {
			r := ranges[rng.Intn(len(ranges))]
			p.IPAddress = float64(r.Lower) + rng.Float64()*float64(r.Upper-r.Lower)
		}
		out[i] = p
	}
	return out
}

// fraud shifts of the principal components, indexed from V1
var creditShift = []struct {
	v     int
	shift float64
}{
	{0, -3}, {2, -4}, {3, 3.5}, {9, -4}, {10, 3}, {11, -5}, {13, -6}, {16, -4},
}

// CardTransactions generates the credit card transactions over two days.
func CardTransactions(opts Options) []CardTransaction {
	rng := rand.New(rand.NewSource(opts.Seed + 1))
	every := stride(opts.CreditFraudRate)

	out := make([]CardTransaction, opts.Rows)
	for i := range out {
		if opts.DuplicateEvery > 0 && i > 0 && i%opts.DuplicateEvery == 0 {
			out[i] = out[i-1]
			continue
		}

		tx := CardTransaction{Time: math.Floor(float64(i) * 172792 / float64(max(1, opts.Rows)))}
		for j := range tx.V {
			tx.V[j] = rng.NormFloat64()
		}
		tx.Amount = math.Round(math.Exp(3+1.2*rng.NormFloat64())*100) / 100

		if i%every == every/2 {
			tx.Class = 1
			for _, s := range creditShift {
				tx.V[s.v] += s.shift + 0.5*rng.NormFloat64()
			}
			if rng.Intn(2) == 0 {
				tx.Amount = 1
			} else {
				tx.Amount = math.Round((200+rng.Float64()*800)*100) / 100
			}
		}
		out[i] = tx
	}
	return out
}

// Write generates the three files under dir/raw and returns their paths.
func Write(dir string, opts Options) (Files, error) {
	if opts.Rows <= 0 {
		return Files{}, fmt.Errorf("synth: rows must be positive, got %d", opts.Rows)
	}
	raw := filepath.Join(dir, "raw")
	if err := os.MkdirAll(raw, 0o755); err != nil {
		return Files{}, err
	}

	files := Files{
		FraudData:  filepath.Join(raw, FraudDataFile),
		IPData:     filepath.Join(raw, IPDataFile),
		CreditData: filepath.Join(raw, CreditDataFile),
	}

	purchases := Purchases(opts)
	err := writeCSV(files.FraudData,
		[]string{"user_id", "signup_time", "purchase_time", "purchase_value", "device_id",
			"source", "browser", "sex", "age", "ip_address", "class"},
		len(purchases), func(i int) []string {
			p := purchases[i]
			return []string{
				strconv.Itoa(p.UserID),
				p.SignupTime.Format(frame.TimeLayout),
				p.PurchaseTime.Format(frame.TimeLayout),
				strconv.FormatFloat(p.PurchaseValue, 'f', -1, 64),
				p.DeviceID,
				p.Source,
				p.Browser,
				p.Sex,
				strconv.Itoa(p.Age),
				strconv.FormatFloat(p.IPAddress, 'f', 5, 64),
				strconv.Itoa(p.Class),
			}
		})
	if err != nil {
		return Files{}, err
	}

	ranges := IPRanges()
	err = writeCSV(files.IPData,
		[]string{ipgeo.LowerColumn, ipgeo.UpperColumn, ipgeo.CountryColumn},
		len(ranges), func(i int) []string {
			r := ranges[i]
			return []string{
				strconv.FormatFloat(float64(r.Lower), 'f', 1, 64),
				strconv.FormatInt(r.Upper, 10),
				r.Country,
			}
		})
	if err != nil {
		return Files{}, err
	}

	txs := CardTransactions(opts)
	header := []string{"Time"}
	for j := 1; j <= 28; j++ {
		header = append(header, fmt.Sprintf("V%d", j))
	}
	header = append(header, "Amount", "Class")
	err = writeCSV(files.CreditData, header, len(txs), func(i int) []string {
		tx := txs[i]
		rec := make([]string, 0, len(header))
		rec = append(rec, strconv.FormatFloat(tx.Time, 'f', 1, 64))
		for _, v := range tx.V {
			rec = append(rec, strconv.FormatFloat(v, 'f', 6, 64))
		}
		return append(rec,
			strconv.FormatFloat(tx.Amount, 'f', 2, 64),
			strconv.Itoa(tx.Class))
	})
	if err != nil {
		return Files{}, err
	}
	return files, nil
}

func writeCSV(filename string, header []string, n int, row func(i int) []string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("synth: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := writer.Write(row(i)); err != nil {
			return err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	return file.Close()
}
