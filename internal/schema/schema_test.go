package schema

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	_ "modernc.org/sqlite"
)

func TestRender(t *testing.T) {
	desc := Description{Tables: []Table{
		{Name: "Artist", Columns: []Column{{Name: "ArtistId", DeclaredType: "INTEGER"}, {Name: "Name", DeclaredType: "NVARCHAR(120)"}}},
		{Name: "Invoice", Columns: []Column{{Name: "BillingCountry", DeclaredType: "NVARCHAR(40)"}, {Name: "Total", DeclaredType: "NUMERIC(10,2)"}}},
		{Name: "Loose", Columns: []Column{{Name: "anything"}}},
	}}
	want := "- Artist(ArtistId INTEGER, Name NVARCHAR(120))\n" +
		"- Invoice(BillingCountry NVARCHAR(40), Total NUMERIC(10,2))\n" +
		"- Loose(anything)"
	if got := desc.Render(); got != want {
		t.Fatalf("Render() =\n%s\nwant\n%s", got, want)
	}
	if got := (Description{}).Render(); got != "" {
		t.Fatalf("Render(empty) = %q", got)
	}
}

func TestDescriptionTableLookup(t *testing.T) {
	desc := Description{Tables: []Table{{Name: "Invoice"}}}
	if _, ok := desc.Table("invoice"); !ok {
		t.Fatal("Table(invoice) not found")
	}
	if _, ok := desc.Table("Track"); ok {
		t.Fatal("Table(Track) should not be found")
	}
}

func TestNewIntrospectorRejectsUnknownDialect(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := NewIntrospector(db, "oracle"); err == nil || !strings.Contains(err.Error(), "dialect not registered") {
		t.Fatalf("NewIntrospector() error = %v", err)
	}
	if _, err := NewIntrospector(nil, "sqlite"); err == nil {
		t.Fatal("expected error for nil db")
	}
}

func TestRegisteredDialects(t *testing.T) {
	got := strings.Join(RegisteredDialects(), ",")
	if got != "duckdb,mysql,postgres,sqlite" {
		t.Fatalf("RegisteredDialects() = %q", got)
	}
}

func TestSQLiteDescribeWithMock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Album").AddRow("Artist"))
	mock.ExpectQuery(regexp.QuoteMeta(`PRAGMA table_info("Album")`)).
		WillReturnRows(sqlmock.NewRows([]string{"cid", "name", "type", "notnull", "dflt_value", "pk"}).
			AddRow(0, "AlbumId", "INTEGER", 1, nil, 1).
			AddRow(1, "Title", "NVARCHAR(160)", 1, nil, 0).
			AddRow(2, "ArtistId", "INTEGER", 1, nil, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`PRAGMA table_info("Artist")`)).
		WillReturnRows(sqlmock.NewRows([]string{"cid", "name", "type", "notnull", "dflt_value", "pk"}).
			AddRow(0, "ArtistId", "INTEGER", 1, nil, 1).
			AddRow(1, "Name", "NVARCHAR(120)", 0, nil, 0))

	introspector, err := NewIntrospector(db, "sqlite")
	if err != nil {
		t.Fatalf("NewIntrospector() error = %v", err)
	}
	desc, err := introspector.Describe(context.Background())
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	want := "- Album(AlbumId INTEGER, Title NVARCHAR(160), ArtistId INTEGER)\n- Artist(ArtistId INTEGER, Name NVARCHAR(120))"
	if got := desc.Render(); got != want {
		t.Fatalf("Render() = %q", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestInformationSchemaDescribeGroupsByTable(t *testing.T) {
	for _, dialect := range []string{"postgres", "duckdb", "mysql"} {
		t.Run(dialect, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("sqlmock.New() error = %v", err)
			}
			defer func() { _ = db.Close() }()

			mock.ExpectQuery("FROM information_schema.columns").
				WillReturnRows(sqlmock.NewRows([]string{"table_name", "column_name", "data_type"}).
					AddRow("customer", "customer_id", "integer").
					AddRow("customer", "country", "text").
					AddRow("invoice", "invoice_id", "integer").
					AddRow("invoice", "total", "numeric"))

			introspector, err := NewIntrospector(db, dialect)
			if err != nil {
				t.Fatalf("NewIntrospector() error = %v", err)
			}
			desc, err := introspector.Describe(context.Background())
			if err != nil {
				t.Fatalf("Describe() error = %v", err)
			}
			if desc.Dialect != dialect || len(desc.Tables) != 2 {
				t.Fatalf("Describe() = %+v", desc)
			}
			if got := desc.Tables[1].Columns[1]; got.Name != "total" || got.DeclaredType != "numeric" {
				t.Fatalf("invoice column = %+v", got)
			}
		})
	}
}

func TestDescribeWrapsSchemaUnavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("sqlite_master").WillReturnError(errors.New("disk I/O error"))

	introspector, err := NewIntrospector(db, "sqlite")
	if err != nil {
		t.Fatalf("NewIntrospector() error = %v", err)
	}
	_, err = introspector.Describe(context.Background())
	if !errors.Is(err, ErrSchemaUnavailable) {
		t.Fatalf("Describe() error = %v, want ErrSchemaUnavailable", err)
	}
	if !strings.Contains(err.Error(), "disk I/O error") {
		t.Fatalf("Describe() error = %v", err)
	}
}

func TestSQLiteDescribeAgainstRealDatabase(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	db.SetMaxOpenConns(1)
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	for _, stmt := range []string{
		`CREATE TABLE Invoice (InvoiceId INTEGER PRIMARY KEY AUTOINCREMENT, BillingCountry NVARCHAR(40), Total NUMERIC(10,2))`,
		`CREATE TABLE "Order Line" (id INTEGER, note)`,
		`CREATE TABLE Artist (ArtistId INTEGER PRIMARY KEY, Name NVARCHAR(120))`,
		`CREATE VIEW ArtistNames AS SELECT Name FROM Artist`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}

	introspector, err := NewIntrospector(db, "sqlite")
	if err != nil {
		t.Fatalf("NewIntrospector() error = %v", err)
	}
	desc, err := introspector.Describe(ctx)
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	want := "- Artist(ArtistId INTEGER, Name NVARCHAR(120))\n" +
		"- Invoice(InvoiceId INTEGER, BillingCountry NVARCHAR(40), Total NUMERIC(10,2))\n" +
		"- Order Line(id INTEGER, note)"
	if got := desc.Render(); got != want {
		t.Fatalf("Render() =\n%s\nwant\n%s", got, want)
	}
}
