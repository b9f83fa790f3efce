package demo

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"path/filepath"
	"reflect"
	"testing"
)

func TestDatasetDeterministicForSeed(t *testing.T) {
	size := Size{Artists: 5, Customers: 8, Invoices: 20}
	d1 := NewGenerator(42).Dataset(size)
	d2 := NewGenerator(42).Dataset(size)
	if !reflect.DeepEqual(d1, d2) {
		t.Fatal("same seed produced different datasets")
	}
	d3 := NewGenerator(43).Dataset(size)
	if reflect.DeepEqual(d1, d3) {
		t.Fatal("different seeds produced identical datasets")
	}
}

func TestInvoiceTotalsMatchLines(t *testing.T) {
	ds := NewGenerator(7).Dataset(Size{Artists: 6, Customers: 10, Invoices: 50})
	invoices, _ := ds.Table("Invoice")
	lines, _ := ds.Table("InvoiceLine")
	customers, _ := ds.Table("Customer")

	sums := map[int64]float64{}
	for _, line := range lines.Rows {
		sums[line[1].(int64)] += line[3].(float64) * float64(line[4].(int64))
	}
	if len(invoices.Rows) != 50 {
		t.Fatalf("invoices = %d", len(invoices.Rows))
	}
	for _, inv := range invoices.Rows {
		id := inv[0].(int64)
		if got, want := inv[4].(float64), math.Round(sums[id]*100)/100; got != want {
			t.Fatalf("invoice %d total = %v, want %v", id, got, want)
		}
		customer := customers.Rows[inv[1].(int64)-1]
		if inv[3] != customer[3] {
			t.Fatalf("invoice %d billed to %v, customer lives in %v", id, inv[3], customer[3])
		}
	}
}

func TestWriteSQLiteSupportsSampleQuestions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.sqlite")
	counts, err := WriteSQLite(context.Background(), path, NewGenerator(1).Dataset(DefaultSize()), false)
	if err != nil {
		t.Fatalf("WriteSQLite() error = %v", err)
	}
	if counts["Invoice"] != DefaultSize().Invoices || counts["Artist"] != DefaultSize().Artists {
		t.Fatalf("counts = %v", counts)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.Query(`SELECT BillingCountry, SUM(Total) AS Revenue FROM Invoice GROUP BY BillingCountry ORDER BY Revenue DESC LIMIT 5`)
	if err != nil {
		t.Fatalf("revenue query: %v", err)
	}
	n := 0
	for rows.Next() {
		n++
	}
	_ = rows.Close()
	if n == 0 {
		t.Fatal("revenue query returned no rows")
	}

	var top string
	err = db.QueryRow(`SELECT ar.Name FROM Artist ar JOIN Album al ON al.ArtistId = ar.ArtistId JOIN Track t ON t.AlbumId = al.AlbumId GROUP BY ar.ArtistId ORDER BY COUNT(*) DESC LIMIT 1`).Scan(&top)
	if err != nil || top == "" {
		t.Fatalf("tracks per artist query = %q, %v", top, err)
	}

	if _, err := WriteSQLite(context.Background(), path, Dataset{}, false); !errors.Is(err, ErrExists) {
		t.Fatalf("second WriteSQLite() error = %v, want ErrExists", err)
	}
	if _, err := WriteSQLite(context.Background(), path, NewGenerator(2).Dataset(Size{Artists: 1, Customers: 1, Invoices: 1}), true); err != nil {
		t.Fatalf("overwrite WriteSQLite() error = %v", err)
	}
}
