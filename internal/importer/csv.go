package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/boddenberg/pharma-crm/internal/domain"
)

// ParseCSV reads a comma or semicolon separated export. The delimiter is
// taken from the header line.
func ParseCSV(r io.Reader, opts Options) (*Result, error) {
	br := bufio.NewReader(r)
	first, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(bytes.TrimSpace(first)) == 0 {
		return nil, &domain.ErrValidation{Field: "file", Message: "file is empty"}
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comma = detectDelimiter(first)

	record, err := cr.Read()
	if err != nil {
		return nil, &domain.ErrValidation{Field: "header", Message: err.Error()}
	}
	h, err := parseHeader(record)
	if err != nil {
		return nil, err
	}

	b := newBuilder(h, opts)
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line, _ := cr.FieldPos(0)
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				b.result.Rows++
				b.result.RowErrors = append(b.result.RowErrors, domain.ImportRowError{Line: perr.Line, Message: perr.Err.Error()})
				continue
			}
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if err := b.add(line, record); err != nil {
			return nil, err
		}
	}
	return b.result, nil
}

func detectDelimiter(sample []byte) rune {
	if i := bytes.IndexByte(sample, '\n'); i >= 0 {
		sample = sample[:i]
	}
	if bytes.Count(sample, []byte(";")) > bytes.Count(sample, []byte(",")) {
		return ';'
	}
	return ','
}
