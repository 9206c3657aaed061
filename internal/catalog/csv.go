package catalog

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
)

const (
	columnSido         = "sido"
	columnSigungu      = "sigungu"
	columnEupmyeondong = "eupmyeondong"
	columnCode         = "code"
)

var headerAliases = map[string]string{
	"시도명":          columnSido,
	"시도":           columnSido,
	"sido":         columnSido,
	"시군구명":         columnSigungu,
	"시군구":          columnSigungu,
	"sigungu":      columnSigungu,
	"읍면동명":         columnEupmyeondong,
	"읍면동":          columnEupmyeondong,
	"eupmyeondong": columnEupmyeondong,
	"법정동코드":        columnCode,
	"adm_cd10":     columnCode,
	"region_cd":    columnCode,
	"code":         columnCode,
	"pnu10":        columnCode,
}

// ReadCSV parses district rows from a CSV export with a header line.
// Korean and English column names are both accepted; extra columns are ignored.
func ReadCSV(r io.Reader) ([]District, error) {
	reader := csv.NewReader(stripBOM(r))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, eris.New("catalog csv is empty")
		}
		return nil, eris.Wrap(err, "reading catalog csv header")
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(norm.NFC.String(strings.TrimSpace(name)))
		if column, ok := headerAliases[key]; ok {
			index[column] = i
		}
	}
	for _, required := range []string{columnSido, columnCode} {
		if _, ok := index[required]; !ok {
			return nil, eris.Errorf("catalog csv is missing the %s column", required)
		}
	}

	field := func(record []string, column string) string {
		i, ok := index[column]
		if !ok || i >= len(record) {
			return ""
		}
		return norm.NFC.String(strings.TrimSpace(record[i]))
	}

	districts := make([]District, 0)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "reading catalog csv row")
		}

		code := field(record, columnCode)
		if code == "" {
			line, _ := reader.FieldPos(0)
			return nil, eris.Errorf("catalog csv line %d has no code", line)
		}

		districts = append(districts, District{
			Sido:         field(record, columnSido),
			Sigungu:      field(record, columnSigungu),
			Eupmyeondong: field(record, columnEupmyeondong),
			Code:         code,
		})
	}

	return districts, nil
}

func stripBOM(r io.Reader) io.Reader {
	buffered := bufio.NewReader(r)
	if prefix, err := buffered.Peek(3); err == nil && bytes.Equal(prefix, []byte("\xef\xbb\xbf")) {
		_, _ = buffered.Discard(3)
	}
	return buffered
}
