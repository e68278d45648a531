package logstore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"env-dashboard/internal/reading"
)

// TimeLayout je formát časové značky v CSV.
const TimeLayout = "2006-01-02 15:04:05"

// FixedZone vrací pevnou časovou zónu s posunem v hodinách (např. +7 pro WIB).
func FixedZone(offsetHours int) *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", offsetHours), offsetHours*3600)
}

// Encode zapíše hlavičku a záznamy ve zvolených sloupcích.
func Encode(w io.Writer, records []LogRecord, columns []Column, loc *time.Location) error {
	if len(columns) == 0 {
		columns = DefaultColumns
	}
	if loc == nil {
		loc = time.UTC
	}
	cw := csv.NewWriter(w)
	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = string(c)
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(columns))
	for _, r := range records {
		for i, c := range columns {
			row[i] = cell(r, c, loc)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func cell(r LogRecord, c Column, loc *time.Location) string {
	switch c {
	case ColTimestamp:
		return r.Timestamp.In(loc).Format(TimeLayout)
	case ColTemperature:
		return reading.FormatFloat(r.Temperature)
	case ColHumidity:
		return reading.FormatFloat(r.Humidity)
	case ColLight:
		return reading.FormatInt(r.Light)
	case ColRawLight:
		return reading.FormatInt(r.RawLight)
	case ColDeviceLabel:
		return r.DeviceLabel
	case ColStatusLabel:
		return r.StatusLabel
	case ColStatusCode:
		return r.StatusCode
	case ColCommandSent:
		return r.CommandSent
	case ColConfidence:
		return reading.FormatFloat(r.Confidence)
	}
	return ""
}

// WriteCSV přepíše soubor na path celým obsahem records. Zapisuje se do
// dočasného souboru ve stejném adresáři a ten se pak přejmenuje, takže čtenář
// nikdy neuvidí napůl zapsaný soubor.
func WriteCSV(path string, records []LogRecord, columns []Column, loc *time.Location) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("nelze vytvořit dočasný soubor: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = Encode(tmp, records, columns, loc); err != nil {
		return fmt.Errorf("zápis CSV selhal: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("uzavření CSV selhalo: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("přejmenování CSV selhalo: %w", err)
	}
	return nil
}

// ReadCSV načte záznamy z CSV zrcadla. Neexistující soubor není chyba,
// vrací prázdnou historii. Řádky s nečitelnou časovou značkou se přeskočí.
func ReadCSV(path string, loc *time.Location) ([]LogRecord, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f, loc)
}

// Decode čte CSV s hlavičkou. Neznámé sloupce ignoruje, chybějící buňky
// dávají chybějící hodnoty.
func Decode(r io.Reader, loc *time.Location) ([]LogRecord, error) {
	if loc == nil {
		loc = time.UTC
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("nelze přečíst hlavičku CSV: %w", err)
	}
	cols := make([]Column, len(header))
	hasTime := false
	for i, h := range header {
		if c, ok := columnFromHeader(h); ok {
			cols[i] = c
			hasTime = hasTime || c == ColTimestamp
		}
	}
	if !hasTime {
		return nil, fmt.Errorf("CSV nemá sloupec %s", ColTimestamp)
	}

	var out []LogRecord
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return out, fmt.Errorf("chyba čtení CSV: %w", err)
		}
		rec, ok := decodeRow(row, cols, loc)
		if ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func decodeRow(row []string, cols []Column, loc *time.Location) (LogRecord, bool) {
	var rec LogRecord
	okTime := false
	for i, v := range row {
		if i >= len(cols) || cols[i] == "" {
			continue
		}
		v = strings.TrimSpace(v)
		switch cols[i] {
		case ColTimestamp:
			t, err := parseTime(v, loc)
			if err != nil {
				return LogRecord{}, false
			}
			rec.Timestamp, okTime = t, true
		case ColTemperature:
			rec.Temperature = parseFloat(v)
		case ColHumidity:
			rec.Humidity = parseFloat(v)
		case ColLight:
			rec.Light = parseInt(v)
		case ColRawLight:
			rec.RawLight = parseInt(v)
		case ColDeviceLabel:
			rec.DeviceLabel = v
		case ColStatusLabel:
			rec.StatusLabel = v
		case ColStatusCode:
			rec.StatusCode = v
		case ColCommandSent:
			rec.CommandSent = v
		case ColConfidence:
			rec.Confidence = parseFloat(v)
		}
	}
	return rec, okTime
}

func parseTime(v string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(TimeLayout, v, loc); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}

// isMissing rozpozná prázdné buňky a značky, které zapisuje pandas.
func isMissing(v string) bool {
	switch strings.ToLower(v) {
	case "", "nan", "n/a", "none", "null":
		return true
	}
	return false
}

func parseFloat(v string) *float64 {
	if isMissing(v) {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func parseInt(v string) *int64 {
	f := parseFloat(v)
	if f == nil {
		return nil
	}
	i := int64(math.Round(*f))
	return &i
}

// Restore naplní store historií z CSV zrcadla. Vrací počet načtených záznamů.
func (s *Store) Restore(path string, loc *time.Location) (int, error) {
	records, err := ReadCSV(path, loc)
	if err != nil {
		return 0, err
	}
	s.Load(records)
	return s.Len(), nil
}
