package userdir

import (
	"strings"
	"testing"
)

func TestParseCSV_ValidRows(t *testing.T) {
	data := `RADIO_ID,CALLSIGN,FIRST_NAME,LAST_NAME,CITY,STATE,COUNTRY
3138617,K7ABC,John,Doe,Seattle,WA,USA
3200449,W7XYZ,Jane,Smith,Portland,OR,USA`

	entries, err := parseCSV(strings.NewReader(data))
	if err != nil {
		t.Fatalf("parseCSV: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].RadioID != 3138617 || entries[0].Callsign != "K7ABC" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
}

func TestParseCSV_SkipsInvalidRows(t *testing.T) {
	data := `RADIO_ID,CALLSIGN,FIRST_NAME,LAST_NAME,CITY,STATE,COUNTRY
invalid,K7ABC,John,Doe,Seattle,WA,USA
3138617,K7DEF,Jane,Smith,Portland,OR,USA
short,line
1234567,VE3TEST,Bob,Johnson,Toronto,ON,Canada`

	entries, err := parseCSV(strings.NewReader(data))
	if err != nil {
		t.Fatalf("parseCSV: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 valid entries, got %d", len(entries))
	}
}

func TestLoadCSV_MissingFile(t *testing.T) {
	if _, err := LoadCSV("/nonexistent/path/user.csv"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
