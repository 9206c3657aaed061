package registry

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrMalformed marks a response that arrived intact but does not have the expected shape.
var ErrMalformed = eris.New("malformed registry response")

const (
	resultCodeOK     = "INFO-0"
	resultCodeNoData = "INFO-200"
	snippetLength    = 120
)

type envelope struct {
	Blocks []block     `json:"StanReginCd"`
	Result *ResultInfo `json:"RESULT"`
	Record
}

type block struct {
	Head []json.RawMessage `json:"head"`
	Row  []Record          `json:"row"`
}

// serviceError is the XML document the gateway emits for key and quota problems.
type serviceError struct {
	XMLName    xml.Name `xml:"OpenAPI_ServiceResponse"`
	ErrMsg     string   `xml:"cmmMsgHeader>errMsg"`
	AuthMsg    string   `xml:"cmmMsgHeader>returnAuthMsg"`
	ReasonCode string   `xml:"cmmMsgHeader>returnReasonCode"`
}

// Decode parses a registry response body.
// It accepts the StanReginCd envelope, a bare record object or a bare record array.
func Decode(body []byte) (*Page, error) {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")))
	if len(trimmed) == 0 {
		return nil, eris.Wrap(ErrMalformed, "empty body")
	}

	switch trimmed[0] {
	case '[':
		var records []Record
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, eris.Wrapf(ErrMalformed, "decoding record array: %v", err)
		}
		return newPage(Head{}, records)
	case '{':
		return decodeObject(trimmed)
	case '<':
		return nil, decodeServiceError(trimmed)
	default:
		return nil, eris.Wrapf(ErrMalformed, "unexpected body: %s", snippet(trimmed))
	}
}

func decodeObject(body []byte) (*Page, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, eris.Wrapf(ErrMalformed, "decoding response object: %v", err)
	}

	switch {
	case env.Blocks != nil:
		var head Head
		records := make([]Record, 0)
		for _, b := range env.Blocks {
			for _, raw := range b.Head {
				// The registry splits head metadata across several single-key objects.
				if err := json.Unmarshal(raw, &head); err != nil {
					return nil, eris.Wrapf(ErrMalformed, "decoding head: %v", err)
				}
			}
			records = append(records, b.Row...)
		}
		if err := checkResult(head.Result); err != nil {
			return nil, err
		}
		return newPage(head, records)
	case env.Result != nil:
		if err := checkResult(env.Result); err != nil {
			return nil, err
		}
		return newPage(Head{Result: env.Result}, nil)
	case env.Record.RegionCode != "":
		return newPage(Head{}, []Record{env.Record})
	default:
		return nil, eris.Wrapf(ErrMalformed, "response has no StanReginCd, RESULT or region_cd: %s", snippet(body))
	}
}

func checkResult(result *ResultInfo) error {
	if result == nil {
		return nil
	}
	code := strings.TrimSpace(result.Code)
	if code == "" || code == resultCodeOK || code == resultCodeNoData {
		return nil
	}
	return eris.Wrapf(ErrMalformed, "registry reported %s: %s", code, strings.TrimSpace(result.Message))
}

func newPage(head Head, records []Record) (*Page, error) {
	if records == nil {
		records = []Record{}
	}
	for idx, record := range records {
		if err := record.validate(); err != nil {
			return nil, eris.Wrapf(ErrMalformed, "row %d: %v", idx, err)
		}
	}
	if head.TotalCount == 0 {
		head.TotalCount = Count(len(records))
	}
	return &Page{Head: head, Records: records}, nil
}

func decodeServiceError(body []byte) error {
	var doc serviceError
	if err := xml.Unmarshal(body, &doc); err != nil || doc.XMLName.Local == "" {
		return eris.Wrapf(ErrMalformed, "unexpected xml body: %s", snippet(body))
	}

	message := strings.TrimSpace(doc.AuthMsg)
	if message == "" {
		message = strings.TrimSpace(doc.ErrMsg)
	}
	return eris.Wrapf(ErrMalformed, "registry rejected request (reason %s): %s", strings.TrimSpace(doc.ReasonCode), message)
}

func snippet(body []byte) string {
	text := string(body)
	runes := []rune(text)
	if len(runes) > snippetLength {
		return string(runes[:snippetLength]) + "..."
	}
	return text
}
