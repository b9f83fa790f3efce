// Package demo builds a small, reproducible music-store database shaped like
// Chinook so askql can be tried without downloading a sample.
package demo

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

type Size struct {
	Artists   int
	Customers int
	Invoices  int
}

func DefaultSize() Size {
	return Size{Artists: 40, Customers: 60, Invoices: 400}
}

type Table struct {
	Name    string
	DDL     string
	Columns []string
	Rows    [][]any
}

type Dataset struct {
	Tables []Table
}

func (d Dataset) Table(name string) (Table, bool) {
	for _, t := range d.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// Generator is deterministic for a given seed.
type Generator struct {
	rnd   *rand.Rand
	start time.Time
}

func NewGenerator(seed int64) *Generator {
	return &Generator{
		rnd:   rand.New(rand.NewSource(seed)),
		start: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

var (
	genres      = []string{"Rock", "Jazz", "Metal", "Alternative & Punk", "Latin", "Blues", "Classical", "Pop"}
	adjectives  = []string{"Velvet", "Electric", "Silent", "Broken", "Golden", "Midnight", "Crimson", "Hollow", "Wild", "Northern"}
	nouns       = []string{"Foxes", "Engines", "Tides", "Saints", "Harbors", "Wolves", "Lanterns", "Orbits", "Rivers", "Echoes"}
	titleWords  = []string{"Love", "Fire", "Road", "Night", "Dream", "Stone", "Heart", "City", "Rain", "Light", "Ghost", "Summer"}
	firstNames  = []string{"Luís", "Leonie", "François", "Bjørn", "František", "Helena", "Astrid", "Daan", "Kara", "Eduardo", "Mark", "Jennifer", "Frank", "Aaron", "Ellie", "Puja"}
	lastNames   = []string{"Gonçalves", "Köhler", "Tremblay", "Hansen", "Wichterlová", "Holý", "Schneider", "Peeters", "Nielsen", "Martins", "Philips", "Peterson", "Harris", "Mitchell", "Sullivan", "Srivastava"}
	countryPool = []string{"USA", "Canada", "Brazil", "France", "Germany", "United Kingdom", "Portugal", "India", "Czech Republic", "Chile"}
)

func (g *Generator) Dataset(size Size) Dataset {
	if size.Artists <= 0 || size.Customers <= 0 || size.Invoices < 0 {
		size = DefaultSize()
	}

	genreRows := make([][]any, 0, len(genres))
	for i, name := range genres {
		genreRows = append(genreRows, []any{int64(i + 1), name})
	}

	var (
		artistRows [][]any
		albumRows  [][]any
		trackRows  [][]any
		trackPrice []float64
		seen       = map[string]bool{}
	)
	for artistID := 1; artistID <= size.Artists; artistID++ {
		name := pickOne(g.rnd, adjectives) + " " + pickOne(g.rnd, nouns)
		if g.rnd.Intn(3) == 0 {
			name = "The " + name
		}
		if seen[name] {
			name = fmt.Sprintf("%s %d", name, artistID)
		}
		seen[name] = true
		artistRows = append(artistRows, []any{int64(artistID), name})

		mainGenre := int64(g.rnd.Intn(len(genres)) + 1)
		albums := 1 + g.rnd.Intn(3)
		for a := 0; a < albums; a++ {
			albumID := int64(len(albumRows) + 1)
			albumRows = append(albumRows, []any{albumID, g.title(2), int64(artistID)})
			tracks := 6 + g.rnd.Intn(7)
			for tr := 0; tr < tracks; tr++ {
				genre := mainGenre
				if g.rnd.Intn(5) == 0 {
					genre = int64(g.rnd.Intn(len(genres)) + 1)
				}
				price := 0.99
				if g.rnd.Intn(10) == 0 {
					price = 1.99
				}
				trackRows = append(trackRows, []any{
					int64(len(trackRows) + 1),
					g.title(1 + g.rnd.Intn(3)),
					albumID,
					genre,
					int64(150000 + g.rnd.Intn(270000)),
					price,
				})
				trackPrice = append(trackPrice, price)
			}
		}
	}

	customerRows := make([][]any, 0, size.Customers)
	customerCountry := make([]string, 0, size.Customers)
	for customerID := 1; customerID <= size.Customers; customerID++ {
		first := pickOne(g.rnd, firstNames)
		last := pickOne(g.rnd, lastNames)
		country := g.pickCountry()
		email := fmt.Sprintf("%s.%s%d@example.com", asciiLower(first), asciiLower(last), customerID)
		customerRows = append(customerRows, []any{int64(customerID), first, last, country, email})
		customerCountry = append(customerCountry, country)
	}

	invoiceRows := make([][]any, 0, size.Invoices)
	var lineRows [][]any
	for invoiceID := 1; invoiceID <= size.Invoices; invoiceID++ {
		customer := g.rnd.Intn(size.Customers)
		at := g.start.AddDate(0, 0, g.rnd.Intn(3*365))
		lines := 1 + g.rnd.Intn(6)
		total := 0.0
		for l := 0; l < lines; l++ {
			track := g.rnd.Intn(len(trackRows))
			lineRows = append(lineRows, []any{
				int64(len(lineRows) + 1),
				int64(invoiceID),
				int64(track + 1),
				trackPrice[track],
				int64(1),
			})
			total += trackPrice[track]
		}
		invoiceRows = append(invoiceRows, []any{
			int64(invoiceID),
			int64(customer + 1),
			at.Format("2006-01-02 15:04:05"),
			customerCountry[customer],
			round2(total),
		})
	}

	return Dataset{Tables: []Table{
		{
			Name:    "Genre",
			DDL:     `CREATE TABLE Genre (GenreId INTEGER PRIMARY KEY, Name NVARCHAR(120))`,
			Columns: []string{"GenreId", "Name"},
			Rows:    genreRows,
		},
		{
			Name:    "Artist",
			DDL:     `CREATE TABLE Artist (ArtistId INTEGER PRIMARY KEY, Name NVARCHAR(120))`,
			Columns: []string{"ArtistId", "Name"},
			Rows:    artistRows,
		},
		{
			Name:    "Album",
			DDL:     `CREATE TABLE Album (AlbumId INTEGER PRIMARY KEY, Title NVARCHAR(160) NOT NULL, ArtistId INTEGER NOT NULL REFERENCES Artist (ArtistId))`,
			Columns: []string{"AlbumId", "Title", "ArtistId"},
			Rows:    albumRows,
		},
		{
			Name:    "Track",
			DDL:     `CREATE TABLE Track (TrackId INTEGER PRIMARY KEY, Name NVARCHAR(200) NOT NULL, AlbumId INTEGER REFERENCES Album (AlbumId), GenreId INTEGER REFERENCES Genre (GenreId), Milliseconds INTEGER NOT NULL, UnitPrice NUMERIC(10,2) NOT NULL)`,
			Columns: []string{"TrackId", "Name", "AlbumId", "GenreId", "Milliseconds", "UnitPrice"},
			Rows:    trackRows,
		},
		{
			Name:    "Customer",
			DDL:     `CREATE TABLE Customer (CustomerId INTEGER PRIMARY KEY, FirstName NVARCHAR(40) NOT NULL, LastName NVARCHAR(20) NOT NULL, Country NVARCHAR(40), Email NVARCHAR(60) NOT NULL)`,
			Columns: []string{"CustomerId", "FirstName", "LastName", "Country", "Email"},
			Rows:    customerRows,
		},
		{
			Name:    "Invoice",
			DDL:     `CREATE TABLE Invoice (InvoiceId INTEGER PRIMARY KEY, CustomerId INTEGER NOT NULL REFERENCES Customer (CustomerId), InvoiceDate DATETIME NOT NULL, BillingCountry NVARCHAR(40), Total NUMERIC(10,2) NOT NULL)`,
			Columns: []string{"InvoiceId", "CustomerId", "InvoiceDate", "BillingCountry", "Total"},
			Rows:    invoiceRows,
		},
		{
			Name:    "InvoiceLine",
			DDL:     `CREATE TABLE InvoiceLine (InvoiceLineId INTEGER PRIMARY KEY, InvoiceId INTEGER NOT NULL REFERENCES Invoice (InvoiceId), TrackId INTEGER NOT NULL REFERENCES Track (TrackId), UnitPrice NUMERIC(10,2) NOT NULL, Quantity INTEGER NOT NULL)`,
			Columns: []string{"InvoiceLineId", "InvoiceId", "TrackId", "UnitPrice", "Quantity"},
			Rows:    lineRows,
		},
	}}
}

func (g *Generator) title(words int) string {
	parts := make([]string, 0, words)
	for i := 0; i < words; i++ {
		parts = append(parts, pickOne(g.rnd, titleWords))
	}
	return strings.Join(parts, " ")
}

// pickCountry skews toward the USA and Canada like the real sample.
func (g *Generator) pickCountry() string {
	p := g.rnd.Intn(100)
	switch {
	case p < 22:
		return "USA"
	case p < 34:
		return "Canada"
	case p < 44:
		return "Brazil"
	case p < 54:
		return "France"
	default:
		return pickOne(g.rnd, countryPool[4:])
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}

func asciiLower(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
