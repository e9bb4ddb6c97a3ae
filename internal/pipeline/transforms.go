package pipeline

import (
	"context"
	"fmt"

	"github.com/ajitpratap0/nebula-connectors/pkg/connector/core"
	"github.com/ajitpratap0/nebula-connectors/pkg/pool"
)

// FieldMapperTransform renames fields according to mapping. Unmapped fields
// are kept.
//
//	p.AddTransform(FieldMapperTransform(map[string]string{
//	    "received_time": "ReceivedAt__c",
//	    "subject":       "Subject__c",
//	}))
func FieldMapperTransform(mapping map[string]string) Transform {
	return func(ctx context.Context, record *pool.Record) (*pool.Record, error) {
		if record.Data == nil {
			return record, nil
		}

		data := pool.GetMap()
		for field, value := range record.Data {
			if renamed, ok := mapping[field]; ok {
				data[renamed] = value
				continue
			}
			if _, taken := data[field]; !taken {
				data[field] = value
			}
		}

		old := record.Data
		record.Data = data
		pool.PutMap(old)
		return record, nil
	}
}

// FilterTransform keeps the records matching predicate.
func FilterTransform(predicate func(*pool.Record) bool) Transform {
	return func(ctx context.Context, record *pool.Record) (*pool.Record, error) {
		if predicate(record) {
			return record, nil
		}
		return nil, nil
	}
}

// TypeConverterTransform converts one field with converter. Records without
// the field pass unchanged.
func TypeConverterTransform(field string, converter func(interface{}) (interface{}, error)) Transform {
	return func(ctx context.Context, record *pool.Record) (*pool.Record, error) {
		value, ok := record.Data[field]
		if !ok {
			return record, nil
		}
		converted, err := converter(value)
		if err != nil {
			return nil, fmt.Errorf("failed to convert field %s: %w", field, err)
		}
		record.Data[field] = converted
		return record, nil
	}
}

// DropFieldsTransform removes fields, e.g. the metadata columns before a
// load into a fixed table.
func DropFieldsTransform(fields ...string) Transform {
	return func(ctx context.Context, record *pool.Record) (*pool.Record, error) {
		for _, f := range fields {
			delete(record.Data, f)
		}
		return record, nil
	}
}

// RenameSchemaFields is the schema counterpart of FieldMapperTransform.
func RenameSchemaFields(mapping map[string]string) SchemaRewriter {
	return func(schema *core.Schema) *core.Schema {
		if schema == nil {
			return nil
		}
		out := *schema
		out.Fields = make([]core.Field, 0, len(schema.Fields))
		seen := make(map[string]int, len(schema.Fields))
		for _, f := range schema.Fields {
			if renamed, ok := mapping[f.Name]; ok {
				f.Name = renamed
			}
			if i, dup := seen[f.Name]; dup {
				out.Fields[i] = f
				continue
			}
			seen[f.Name] = len(out.Fields)
			out.Fields = append(out.Fields, f)
		}
		return &out
	}
}

// DropSchemaFields is the schema counterpart of DropFieldsTransform.
func DropSchemaFields(fields ...string) SchemaRewriter {
	drop := make(map[string]bool, len(fields))
	for _, f := range fields {
		drop[f] = true
	}
	return func(schema *core.Schema) *core.Schema {
		if schema == nil {
			return nil
		}
		out := *schema
		out.Fields = nil
		for _, f := range schema.Fields {
			if !drop[f.Name] {
				out.Fields = append(out.Fields, f)
			}
		}
		return &out
	}
}
