package registry

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Text is a string field that tolerates numeric JSON values.
// The registry reports codes as strings but some mirrors emit them as numbers.
type Text string

// UnmarshalJSON accepts a JSON string, number or null.
func (t *Text) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*t = ""
		return nil
	}

	if trimmed[0] == '"' {
		var value string
		if err := json.Unmarshal(trimmed, &value); err != nil {
			return eris.Wrap(err, "decoding text field")
		}
		*t = Text(strings.TrimSpace(value))
		return nil
	}

	var number json.Number
	if err := json.Unmarshal(trimmed, &number); err != nil {
		return eris.Errorf("unsupported text field value: %s", string(trimmed))
	}
	*t = Text(number.String())
	return nil
}

// String returns the trimmed field value.
func (t Text) String() string {
	return string(t)
}

// Record is a single row returned by the standard region code service.
// Only RegionCode is mandatory; every other field is optional.
type Record struct {
	RegionCode  Text `json:"region_cd"`
	SidoCode    Text `json:"sido_cd,omitempty"`
	SggCode     Text `json:"sgg_cd,omitempty"`
	UmdCode     Text `json:"umd_cd,omitempty"`
	RiCode      Text `json:"ri_cd,omitempty"`
	JuminCode   Text `json:"locatjumin_cd,omitempty"`
	JijukCode   Text `json:"locatjijuk_cd,omitempty"`
	AddressName Text `json:"locatadd_nm,omitempty"`
	Order       Text `json:"locat_order,omitempty"`
	Remark      Text `json:"locat_rm,omitempty"`
	HighCode    Text `json:"locathigh_cd,omitempty"`
	LowestName  Text `json:"locallow_nm,omitempty"`
	AdoptedOn   Text `json:"adpt_de,omitempty"`
	Name        Text `json:"name,omitempty"`
}

// DisplayName picks the most descriptive name available on the record.
func (r Record) DisplayName() string {
	for _, candidate := range []Text{r.AddressName, r.Name, r.LowestName} {
		if value := strings.TrimSpace(candidate.String()); value != "" {
			return value
		}
	}
	return ""
}

// SearchText is the haystack used for token matching.
func (r Record) SearchText() string {
	parts := make([]string, 0, 3)
	for _, candidate := range []Text{r.AddressName, r.LowestName, r.Name} {
		if value := strings.TrimSpace(candidate.String()); value != "" {
			parts = append(parts, value)
		}
	}
	return strings.Join(parts, " ")
}

func (r Record) validate() error {
	if strings.TrimSpace(r.RegionCode.String()) == "" {
		return eris.New("record is missing region_cd")
	}
	return nil
}

// ResultInfo carries the registry's status code and message.
type ResultInfo struct {
	Code    string `json:"resultCode"`
	Message string `json:"resultMsg"`
}

// Count is an integer field that also accepts quoted numbers.
type Count int

// UnmarshalJSON accepts a JSON number, a numeric string or null.
func (c *Count) UnmarshalJSON(data []byte) error {
	var text Text
	if err := text.UnmarshalJSON(data); err != nil {
		return err
	}
	if text == "" {
		*c = 0
		return nil
	}

	value, err := strconv.Atoi(text.String())
	if err != nil {
		return eris.Wrapf(err, "decoding count field %q", text)
	}
	*c = Count(value)
	return nil
}

// Head is the paging and status metadata attached to a response.
type Head struct {
	TotalCount Count       `json:"totalCount,omitempty"`
	NumOfRows  Count       `json:"numOfRows,omitempty"`
	PageNo     Count       `json:"pageNo,omitempty"`
	Type       string      `json:"type,omitempty"`
	Result     *ResultInfo `json:"RESULT,omitempty"`
}

// Page is a decoded registry response.
type Page struct {
	Head    Head
	Records []Record
	Scheme  string
}
