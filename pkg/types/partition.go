package types

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidPartitionName is returned when a partition name is not a k=v chain.
var ErrInvalidPartitionName = errors.New("invalid partition name")

// KeyLookup resolves a partition key to its value.
type KeyLookup interface {
	Get(key string) (string, bool)
}

// KeyValue is one partition key and its value.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// PartitionKeyValues is the ordered key/value identity of a partition.
type PartitionKeyValues []KeyValue

// Get returns the value of key, if present.
func (kv PartitionKeyValues) Get(key string) (string, bool) {
	for _, e := range kv {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// Keys returns the key names in order.
func (kv PartitionKeyValues) Keys() []string {
	keys := make([]string, len(kv))
	for i, e := range kv {
		keys[i] = e.Key
	}
	return keys
}

// Name renders the Hive-style partition name, e.g. "dt=20200101/region=us".
func (kv PartitionKeyValues) Name() string {
	parts := make([]string, len(kv))
	for i, e := range kv {
		parts[i] = escapePathName(e.Key) + "=" + escapePathName(e.Value)
	}
	return strings.Join(parts, "/")
}

// ParsePartitionName parses a Hive-style partition name into its key values.
func ParsePartitionName(name string) (PartitionKeyValues, error) {
	if name == "" {
		return nil, ErrInvalidPartitionName
	}
	segments := strings.Split(name, "/")
	kv := make(PartitionKeyValues, 0, len(segments))
	for _, seg := range segments {
		k, v, ok := strings.Cut(seg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPartitionName, name)
		}
		key, err := unescapePathName(k)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPartitionName, name)
		}
		value, err := unescapePathName(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPartitionName, name)
		}
		kv = append(kv, KeyValue{Key: key, Value: value})
	}
	return kv, nil
}

// needsEscape follows the metastore's path escaping: separators, quoting
// characters and control characters are written as %XX.
func needsEscape(c byte) bool {
	if c < 0x20 || c == 0x7f {
		return true
	}
	switch c {
	case '"', '#', '%', '\'', '*', '/', ':', '=', '?', '\\', '{', '[', ']', '^':
		return true
	}
	return false
}

func escapePathName(s string) string {
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if needsEscape(c) {
			fmt.Fprintf(&sb, "%%%02X", c)
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

func unescapePathName(s string) (string, error) {
	if !strings.Contains(s, "%") {
		return s, nil
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '%' {
			sb.WriteByte(s[i])
			continue
		}
		if i+2 >= len(s) {
			return "", ErrInvalidPartitionName
		}
		b, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
		if err != nil {
			return "", ErrInvalidPartitionName
		}
		sb.WriteByte(byte(b))
		i += 2
	}
	return sb.String(), nil
}

// PartitionDto is the catalog-visible representation of a partition.
// Values are built by connectors and treated as immutable afterwards.
type PartitionDto struct {
	Name      QualifiedName      `json:"name"`
	Keys      PartitionKeyValues `json:"keys,omitempty"`
	Location  string             `json:"location,omitempty"`
	Metadata  map[string]string  `json:"metadata,omitempty"`
	CreatedAt time.Time          `json:"createdAt,omitempty"`
	UpdatedAt time.Time          `json:"updatedAt,omitempty"`
}

// KeyValues returns the partition's keys, deriving them from the name when
// the connector did not populate them.
func (p PartitionDto) KeyValues() PartitionKeyValues {
	if len(p.Keys) > 0 || p.Name.PartitionName == "" {
		return p.Keys
	}
	kv, err := ParsePartitionName(p.Name.PartitionName)
	if err != nil {
		return nil
	}
	return kv
}

// WithoutMetadata returns a copy with metadata removed.
func (p PartitionDto) WithoutMetadata() PartitionDto {
	p.Metadata = nil
	return p
}

// WithoutLocation returns a copy with the storage location removed.
func (p PartitionDto) WithoutLocation() PartitionDto {
	p.Location = ""
	return p
}
