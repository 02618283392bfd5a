package userdir

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Entry is one radio-ID directory record.
type Entry struct {
	RadioID   uint32
	Callsign  string
	FirstName string
	LastName  string
	City      string
	State     string
	Country   string
}

// LoadCSV parses the radioid.net user.csv format:
// RADIO_ID,CALLSIGN,FIRST_NAME,LAST_NAME,CITY,STATE,COUNTRY,...
// Rows with fewer than 7 columns or a non-numeric RADIO_ID are skipped.
// Fetching the file over the network is the caller's concern; this
// function only ever reads from disk.
func LoadCSV(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return parseCSV(f)
}

func parseCSV(r io.Reader) ([]Entry, error) {
	reader := csv.NewReader(bufio.NewReader(r))

	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	entries := make([]Entry, 0, 1024)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if len(record) < 7 {
			continue
		}
		radioID, err := strconv.ParseUint(record[0], 10, 32)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			RadioID:   uint32(radioID),
			Callsign:  record[1],
			FirstName: record[2],
			LastName:  record[3],
			City:      record[4],
			State:     record[5],
			Country:   record[6],
		})
	}
	return entries, nil
}
