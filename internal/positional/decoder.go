package positional

import (
	"fmt"
	"strings"
)

// Policy controls how the decoder treats lines shorter than the schema.
type Policy string

const (
	// PolicyReject fails the record with a MalformedRecordError.
	PolicyReject Policy = "reject"
	// PolicyPad fills missing trailing fields with the empty string.
	PolicyPad Policy = "pad"
)

func (p Policy) IsValid() bool {
	return p == PolicyReject || p == PolicyPad
}

func ParsePolicyFromString(s string) (Policy, error) {
	p := Policy(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("invalid decode policy %q (want reject or pad)", s)
	}
	return p, nil
}

// Field describes one column of a positional layout: the byte range
// [Start, Start+Length) within a line.
type Field struct {
	Name   string
	Start  int
	Length int
}

// Schema is an ordered column-offset table for one member file layout.
type Schema struct {
	Member string
	Fields []Field
}

// Width returns the number of bytes a full record occupies, i.e. the end
// offset of the right-most field.
func (s Schema) Width() int {
	width := 0
	for _, f := range s.Fields {
		if end := f.Start + f.Length; end > width {
			width = end
		}
	}
	return width
}

func (s Schema) Validate() error {
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema %q has no fields", s.Member)
	}
	seen := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("schema %q has a field without a name", s.Member)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("schema %q has duplicate field %q", s.Member, f.Name)
		}
		seen[f.Name] = struct{}{}
		if f.Start < 0 || f.Length <= 0 {
			return fmt.Errorf("schema %q field %q has invalid range [%d, %d)", s.Member, f.Name, f.Start, f.Start+f.Length)
		}
	}
	return nil
}

// MalformedRecordError reports a line that is too short for the schema under
// PolicyReject. It carries enough context to locate the record in the source
// artifact.
type MalformedRecordError struct {
	Member     string
	LineNumber int
	LineLength int
	WantLength int
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record: member=%s line=%d length=%d want>=%d",
		e.Member, e.LineNumber, e.LineLength, e.WantLength)
}

// Record is one decoded positional line, field name to trimmed value.
type Record map[string]string

// Decoder decodes positional lines against a single schema. It is stateless
// and safe for concurrent use.
type Decoder struct {
	schema Schema
	policy Policy
}

func NewDecoder(schema Schema, policy Policy) (*Decoder, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if !policy.IsValid() {
		return nil, fmt.Errorf("invalid decode policy %q", policy)
	}
	return &Decoder{schema: schema, policy: policy}, nil
}

func (d *Decoder) Schema() Schema { return d.schema }

// Decode parses one raw line. lineNumber is 1-based and used only for error
// context. Under PolicyPad, fields past the end of the line decode to "".
func (d *Decoder) Decode(line string, lineNumber int) (Record, error) {
	if d.policy == PolicyReject && len(line) < d.schema.Width() {
		return nil, &MalformedRecordError{
			Member:     d.schema.Member,
			LineNumber: lineNumber,
			LineLength: len(line),
			WantLength: d.schema.Width(),
		}
	}

	record := make(Record, len(d.schema.Fields))
	for _, f := range d.schema.Fields {
		record[f.Name] = strings.TrimSpace(sliceField(line, f))
	}
	return record, nil
}

func sliceField(line string, f Field) string {
	if f.Start >= len(line) {
		return ""
	}
	end := f.Start + f.Length
	if end > len(line) {
		end = len(line)
	}
	return line[f.Start:end]
}
