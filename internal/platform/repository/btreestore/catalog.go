package btreestore

import (
	"CipherDB/internal/domain"
	"encoding/json"
)

// The catalog is itself a B+tree keyed by table id, payload = JSON schema.
// Its root page id lives in the header and never moves.

func loadTables(pa pageAccess, catalogRoot uint64) ([]domain.TableSchema, []int64, error) {
	t := openBTree(pa, catalogRoot)
	it, err := t.seek(minInt64)
	if err != nil {
		return nil, nil, err
	}
	var tables []domain.TableSchema
	var ids []int64
	for {
		id, payload, ok, err := it.next()
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			break
		}
		var schema domain.TableSchema
		if err := json.Unmarshal(payload, &schema); err != nil {
			return nil, nil, &domain.CorruptPageError{PageID: catalogRoot, Detail: "undecodable catalog entry"}
		}
		tables = append(tables, schema)
		ids = append(ids, id)
	}
	return tables, ids, nil
}

func findTable(pa pageAccess, catalogRoot uint64, name string) (domain.TableSchema, int64, bool, error) {
	tables, ids, err := loadTables(pa, catalogRoot)
	if err != nil {
		return domain.TableSchema{}, 0, false, err
	}
	for i, schema := range tables {
		if schema.Name == name {
			return schema, ids[i], true, nil
		}
	}
	return domain.TableSchema{}, 0, false, nil
}

// createTable allocates the table's tree and records its schema. The
// caller has already checked name uniqueness.
func createTable(pa pageAccess, catalogRoot uint64, schema domain.TableSchema) (domain.TableSchema, error) {
	root, err := createBTree(pa)
	if err != nil {
		return schema, err
	}
	schema.RootPage = root

	t := openBTree(pa, catalogRoot)
	maxID, found, err := t.maxKey()
	if err != nil {
		return schema, err
	}
	id := int64(1)
	if found {
		id = maxID + 1
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return schema, err
	}
	if _, err := t.insert(id, payload, false); err != nil {
		return schema, err
	}
	return schema, nil
}

// dropTable removes the catalog entry and frees every page of the table.
func dropTable(pa pageAccess, catalogRoot uint64, name string) (bool, error) {
	schema, id, ok, err := findTable(pa, catalogRoot, name)
	if err != nil || !ok {
		return false, err
	}
	t := openBTree(pa, catalogRoot)
	if _, err := t.delete(id); err != nil {
		return false, err
	}
	if err := freeTree(pa, schema.RootPage); err != nil {
		return false, err
	}
	return true, nil
}
