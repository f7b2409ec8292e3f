package convert

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/linkedin/goavro/v2"
	"github.com/kursadbilgin/ingest-gate/internal/positional"
	"go.uber.org/zap"
)

// Stats summarizes one member file conversion.
type Stats struct {
	Records  int
	Rejected int
}

// Converter turns a raw positional member file into an Avro object container
// file. One decoder per expected member, fixed at construction.
type Converter struct {
	decoders map[string]*positional.Decoder
	logger   *zap.Logger
}

func NewConverter(schemas []positional.Schema, policy positional.Policy, logger *zap.Logger) (*Converter, error) {
	if len(schemas) == 0 {
		return nil, fmt.Errorf("at least one member schema is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	decoders := make(map[string]*positional.Decoder, len(schemas))
	for _, schema := range schemas {
		if _, dup := decoders[schema.Member]; dup {
			return nil, fmt.Errorf("duplicate schema for member %q", schema.Member)
		}
		decoder, err := positional.NewDecoder(schema, policy)
		if err != nil {
			return nil, fmt.Errorf("invalid schema for member %q: %w", schema.Member, err)
		}
		decoders[schema.Member] = decoder
	}

	return &Converter{decoders: decoders, logger: logger}, nil
}

// Members returns the member keys the converter has schemas for.
func (c *Converter) Members() []string {
	members := make([]string, 0, len(c.decoders))
	for member := range c.decoders {
		members = append(members, member)
	}
	return members
}

// Convert decodes every line of raw against the member's schema and writes
// the records as an Avro OCF. Under the reject policy, malformed records are
// dropped and counted; they never abort the rest of the file.
func (c *Converter) Convert(memberKey string, raw []byte) ([]byte, Stats, error) {
	decoder, ok := c.decoders[memberKey]
	if !ok {
		return nil, Stats{}, fmt.Errorf("no schema configured for member %q", memberKey)
	}

	avroSchema, err := avroSchemaJSON(decoder.Schema())
	if err != nil {
		return nil, Stats{}, err
	}

	var buf bytes.Buffer
	writer, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:      &buf,
		Schema: avroSchema,
	})
	if err != nil {
		return nil, Stats{}, fmt.Errorf("failed to create avro writer for member %q: %w", memberKey, err)
	}

	var stats Stats
	lines := strings.Split(string(raw), "\n")
	for i, line := range lines {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}

		record, err := decoder.Decode(line, i+1)
		if err != nil {
			var malformed *positional.MalformedRecordError
			if errors.As(err, &malformed) {
				stats.Rejected++
				c.logger.Warn("rejected malformed positional record",
					zap.String("member", memberKey),
					zap.Int("line", malformed.LineNumber),
					zap.Int("lineLength", malformed.LineLength),
					zap.Int("wantLength", malformed.WantLength),
				)
				continue
			}
			return nil, stats, fmt.Errorf("failed to decode member %q line %d: %w", memberKey, i+1, err)
		}

		avroRecord := make(map[string]interface{}, len(record))
		for name, value := range record {
			avroRecord[name] = value
		}
		if err := writer.Append([]interface{}{avroRecord}); err != nil {
			return nil, stats, fmt.Errorf("failed to append avro record for member %q: %w", memberKey, err)
		}
		stats.Records++
	}

	return buf.Bytes(), stats, nil
}

func avroSchemaJSON(schema positional.Schema) (string, error) {
	fields := make([]map[string]interface{}, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		fields = append(fields, map[string]interface{}{
			"name": f.Name,
			"type": "string",
		})
	}

	doc := map[string]interface{}{
		"type":      "record",
		"name":      schema.Member,
		"namespace": "ingestgate.curated",
		"fields":    fields,
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal avro schema for member %q: %w", schema.Member, err)
	}
	return string(encoded), nil
}
