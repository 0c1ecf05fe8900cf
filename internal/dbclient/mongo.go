package dbclient

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"datapipe/internal/domain"
	"datapipe/internal/metadata"
)

// describeSampleSize is the number of documents Describe inspects.
const describeSampleSize = 100

// mongoConnector implements Connector for MongoDB.
type mongoConnector struct {
	client *mongo.Client
	dbName string
	logger log.Logger

	mu         sync.Mutex
	cursor     *mongo.Cursor
	lastAccess time.Time
	fetched    int
}

// mongoQuery is the JSON structure users write for MongoDB queries.
type mongoQuery struct {
	Collection string         `json:"collection"`
	Operation  string         `json:"operation,omitempty"` // find (default), aggregate, insertOne, updateMany, deleteMany
	Filter     map[string]any `json:"filter,omitempty"`
	Projection map[string]any `json:"projection,omitempty"`
	Sort       map[string]any `json:"sort,omitempty"`
	Document   map[string]any `json:"document,omitempty"` // for inserts
	Update     map[string]any `json:"update,omitempty"`   // for updates
	Pipeline   []any          `json:"pipeline,omitempty"` // for aggregate
}

// buildMongoURI returns the connection URI and the database to use.
func buildMongoURI(conn *domain.DatabaseConnection) (string, string) {
	var uri string
	if strings.HasPrefix(conn.Host, "mongodb+srv://") || strings.HasPrefix(conn.Host, "mongodb://") {
		uri = conn.Host
		if conn.Password != "" {
			uri = strings.ReplaceAll(uri, "<password>", conn.Password)
			uri = strings.ReplaceAll(uri, "<db_password>", conn.Password)
		}
	} else {
		port := conn.Port
		if port == 0 {
			port = 27017
		}
		host := net.JoinHostPort(conn.Host, strconv.Itoa(port))
		if conn.Username != "" {
			uri = fmt.Sprintf("mongodb://%s:%s@%s", conn.Username, conn.Password, host)
		} else {
			uri = "mongodb://" + host
		}
		if len(conn.Options) > 0 {
			keys := slices.Sorted(maps.Keys(conn.Options))
			params := make([]string, len(keys))
			for i, k := range keys {
				params[i] = k + "=" + conn.Options[k]
			}
			uri += "/?" + strings.Join(params, "&")
		}
	}

	dbName := conn.Database
	if dbName == "" {
		dbName = databaseFromURI(uri)
	}
	if dbName == "" {
		dbName = "test"
	}
	return uri, dbName
}

// databaseFromURI extracts the path segment of user:pass@host/DB?params.
func databaseFromURI(uri string) string {
	rest := uri
	for _, prefix := range []string{"mongodb+srv://", "mongodb://"} {
		rest = strings.TrimPrefix(rest, prefix)
	}
	if at := strings.LastIndex(rest, "@"); at != -1 {
		rest = rest[at+1:]
	}
	slash := strings.Index(rest, "/")
	if slash == -1 {
		return ""
	}
	path := rest[slash+1:]
	if q := strings.Index(path, "?"); q != -1 {
		path = path[:q]
	}
	return path
}

func newMongoConnector(conn *domain.DatabaseConnection, logger log.Logger) (*mongoConnector, error) {
	uri, dbName := buildMongoURI(conn)

	logURI := uri
	if conn.Password != "" {
		logURI = strings.ReplaceAll(logURI, conn.Password, "***")
	}
	level.Debug(logger).Log("msg", "connecting", "uri", logURI, "database", dbName)

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	return &mongoConnector{client: client, dbName: dbName, logger: logger}, nil
}

// unmarshalEJSON converts MongoDB Extended JSON values ($oid, $date,
// $numberLong...) inside a decoded JSON object to BSON values.
func (m *mongoConnector) unmarshalEJSON(field map[string]any) map[string]any {
	if field == nil {
		return nil
	}
	raw, err := json.Marshal(field)
	if err != nil {
		return field
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON(raw, false, &doc); err != nil {
		level.Warn(m.logger).Log("msg", "extended JSON parse failed, using plain JSON", "err", err)
		return field
	}
	result := make(map[string]any, len(doc))
	for _, elem := range doc {
		result[elem.Key] = elem.Value
	}
	return result
}

func (m *mongoConnector) Driver() domain.DatabaseDriver { return domain.DatabaseDriverMongoDB }

func (m *mongoConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return m.client.Ping(ctx, nil)
}

func (m *mongoConnector) Execute(ctx context.Context, query string, fetchSize int) (*QueryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeCursorLocked(ctx)

	if fetchSize <= 0 {
		fetchSize = defaultFetchSize
	}

	var mq mongoQuery
	if err := json.Unmarshal([]byte(query), &mq); err != nil {
		return nil, fmt.Errorf("invalid query JSON: %w", err)
	}
	mq.Filter = m.unmarshalEJSON(mq.Filter)
	mq.Document = m.unmarshalEJSON(mq.Document)
	mq.Update = m.unmarshalEJSON(mq.Update)
	mq.Projection = m.unmarshalEJSON(mq.Projection)
	mq.Sort = m.unmarshalEJSON(mq.Sort)

	if mq.Collection == "" {
		return nil, fmt.Errorf("query must specify 'collection'")
	}
	coll := m.client.Database(m.dbName).Collection(mq.Collection)

	op := mq.Operation
	if op == "" {
		op = "find"
	}
	level.Debug(m.logger).Log("msg", "execute", "collection", mq.Collection, "operation", op)

	filter := mq.Filter
	if filter == nil {
		filter = map[string]any{}
	}

	switch op {
	case "find":
		opts := options.Find().SetBatchSize(int32(fetchSize))
		if mq.Projection != nil {
			opts.SetProjection(mq.Projection)
		}
		if mq.Sort != nil {
			opts.SetSort(mq.Sort)
		}
		cursor, err := coll.Find(ctx, filter, opts)
		if err != nil {
			return nil, fmt.Errorf("find: %w", err)
		}
		return m.openCursorLocked(ctx, cursor, fetchSize)
	case "aggregate":
		pipeline := mq.Pipeline
		if pipeline == nil {
			pipeline = []any{}
		}
		cursor, err := coll.Aggregate(ctx, pipeline)
		if err != nil {
			return nil, fmt.Errorf("aggregate: %w", err)
		}
		return m.openCursorLocked(ctx, cursor, fetchSize)
	case "insertOne":
		if mq.Document == nil {
			return nil, fmt.Errorf("insertOne requires 'document'")
		}
		if _, err := coll.InsertOne(ctx, mq.Document); err != nil {
			return nil, fmt.Errorf("insertOne: %w", err)
		}
		return &QueryPage{IsWrite: true, AffectedRows: 1}, nil
	case "updateMany":
		if mq.Update == nil {
			return nil, fmt.Errorf("updateMany requires 'update'")
		}
		result, err := coll.UpdateMany(ctx, filter, mq.Update)
		if err != nil {
			return nil, fmt.Errorf("updateMany: %w", err)
		}
		return &QueryPage{IsWrite: true, AffectedRows: int(result.ModifiedCount)}, nil
	case "deleteMany":
		result, err := coll.DeleteMany(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("deleteMany: %w", err)
		}
		return &QueryPage{IsWrite: true, AffectedRows: int(result.DeletedCount)}, nil
	default:
		return nil, fmt.Errorf("unsupported operation: %s", op)
	}
}

func (m *mongoConnector) openCursorLocked(ctx context.Context, cursor *mongo.Cursor, fetchSize int) (*QueryPage, error) {
	m.cursor = cursor
	m.fetched = 0
	m.lastAccess = time.Now()
	return m.fetchBatchLocked(ctx, fetchSize)
}

func (m *mongoConnector) FetchMore(ctx context.Context, fetchSize int) (*QueryPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cursor == nil {
		return nil, ErrNoCursor
	}
	if fetchSize <= 0 {
		fetchSize = defaultFetchSize
	}
	m.lastAccess = time.Now()
	return m.fetchBatchLocked(ctx, fetchSize)
}

func (m *mongoConnector) fetchBatchLocked(ctx context.Context, fetchSize int) (*QueryPage, error) {
	var docs []bson.D
	for i := 0; i < fetchSize; i++ {
		if !m.cursor.Next(ctx) {
			break
		}
		var doc bson.D
		if err := m.cursor.Decode(&doc); err != nil {
			m.closeCursorLocked(ctx)
			return nil, fmt.Errorf("decode: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := m.cursor.Err(); err != nil {
		m.closeCursorLocked(ctx)
		return nil, fmt.Errorf("cursor: %w", err)
	}
	m.fetched += len(docs)

	columns := documentKeys(docs)
	rows := make([][]any, 0, len(docs))
	for _, doc := range docs {
		row := make([]any, len(columns))
		byKey := make(map[string]any, len(doc))
		for _, elem := range doc {
			byKey[elem.Key] = elem.Value
		}
		for j, col := range columns {
			row[j] = mongoValue(byKey[col])
		}
		rows = append(rows, row)
	}

	hasMore := len(docs) == fetchSize
	if !hasMore {
		m.closeCursorLocked(ctx)
	}

	return &QueryPage{
		Columns:      columns,
		Rows:         rows,
		TotalFetched: m.fetched,
		HasMore:      hasMore,
	}, nil
}

// documentKeys returns the union of keys of docs: _id first, then
// alphabetical.
func documentKeys(docs []bson.D) []string {
	seen := map[string]bool{}
	var keys []string
	for _, doc := range docs {
		for _, elem := range doc {
			if !seen[elem.Key] {
				seen[elem.Key] = true
				keys = append(keys, elem.Key)
			}
		}
	}
	sort.SliceStable(keys, func(i, j int) bool {
		if keys[i] == "_id" {
			return keys[j] != "_id"
		}
		if keys[j] == "_id" {
			return false
		}
		return keys[i] < keys[j]
	})
	return keys
}

// mongoValue converts BSON values into plain Go values.
func mongoValue(v any) any {
	switch val := v.(type) {
	case bson.ObjectID:
		return val.Hex()
	case bson.DateTime:
		return val.Time().UTC().Format(time.RFC3339)
	case bson.Decimal128:
		f, err := strconv.ParseFloat(val.String(), 64)
		if err != nil {
			return val.String()
		}
		return f
	case int32:
		return int64(val)
	case bson.Binary:
		return val.Data
	case bson.D:
		out := make(map[string]any, len(val))
		for _, elem := range val {
			out[elem.Key] = mongoValue(elem.Value)
		}
		return out
	case bson.M:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = mongoValue(item)
		}
		return out
	case bson.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = mongoValue(item)
		}
		return out
	default:
		return v
	}
}

// bsonStorageType maps a decoded BSON value to a storage type and the BSON
// type name recorded as concrete storage type.
func bsonStorageType(v any) (metadata.StorageType, string) {
	switch v.(type) {
	case nil:
		return metadata.StorageUnset, "null"
	case string:
		return metadata.StorageString, "string"
	case bson.ObjectID:
		return metadata.StorageString, "objectId"
	case int32:
		return metadata.StorageInteger, "int"
	case int64:
		return metadata.StorageInteger, "long"
	case float64:
		return metadata.StorageNumber, "double"
	case bson.Decimal128:
		return metadata.StorageNumber, "decimal"
	case bool:
		return metadata.StorageBoolean, "bool"
	case bson.DateTime:
		return metadata.StorageDatetime, "date"
	case bson.D, bson.M:
		return metadata.StorageObject, "object"
	case bson.A:
		return metadata.StorageArray, "array"
	case bson.Binary:
		return metadata.StorageBinary, "binData"
	}
	return metadata.StorageUnknown, fmt.Sprintf("%T", v)
}

func (m *mongoConnector) Introspect(ctx context.Context) (*SchemaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	collections, err := m.client.Database(m.dbName).ListCollectionNames(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	sort.Strings(collections)

	schema := &SchemaInfo{}
	for _, name := range collections {
		fields, err := m.describe(ctx, name)
		if err != nil {
			level.Warn(m.logger).Log("msg", "sample collection failed", "collection", name, "err", err)
			schema.Tables = append(schema.Tables, TableInfo{Name: name})
			continue
		}
		var cols []ColumnInfo
		for _, f := range fields.Slice() {
			ct, _ := f.ConcreteStorageType.(ColumnType)
			cols = append(cols, ColumnInfo{Name: f.Name, Type: ct.Name, PrimaryKey: f.Name == "_id"})
		}
		schema.Tables = append(schema.Tables, TableInfo{Name: name, Columns: cols})
	}
	return schema, nil
}

// Describe samples documents of the collection and unions their keys.
func (m *mongoConnector) Describe(ctx context.Context, collection string) (*metadata.FieldList, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	fields, err := m.describe(ctx, collection)
	if err != nil {
		return nil, err
	}
	if fields.Len() == 0 {
		return nil, fmt.Errorf("%w: %s (empty or missing collection)", ErrNoSuchTable, collection)
	}
	return fields, nil
}

func (m *mongoConnector) describe(ctx context.Context, collection string) (*metadata.FieldList, error) {
	coll := m.client.Database(m.dbName).Collection(collection)
	cursor, err := coll.Find(ctx, bson.M{}, options.Find().SetLimit(describeSampleSize))
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var docs []bson.D
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("sample %s: %w", collection, err)
	}

	types := map[string]metadata.StorageType{}
	names := map[string]string{}
	for _, doc := range docs {
		for _, elem := range doc {
			st, name := bsonStorageType(elem.Value)
			types[elem.Key] = metadata.WidenStorageType(types[elem.Key], st)
			if _, ok := names[elem.Key]; !ok || names[elem.Key] == "null" {
				names[elem.Key] = name
			}
		}
	}

	fields := &metadata.FieldList{}
	for _, key := range documentKeys(docs) {
		st := types[key]
		if !st.IsSet() {
			st = metadata.StorageUnknown
		}
		f := metadata.NewField(key, st, metadata.AnalyticalUnset)
		f.ConcreteStorageType = ColumnType{Driver: domain.DatabaseDriverMongoDB, Name: names[key]}
		if err := fields.Append(f); err != nil {
			return nil, err
		}
	}
	return fields, nil
}

func (m *mongoConnector) WriteTable(ctx context.Context, collection string, fields *metadata.FieldList, rows [][]any, replace bool) (int, error) {
	coll := m.client.Database(m.dbName).Collection(collection)
	if replace {
		if err := coll.Drop(ctx); err != nil {
			return 0, fmt.Errorf("drop %s: %w", collection, err)
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}

	names := fields.Names()
	docs := make([]any, len(rows))
	for i, row := range rows {
		if len(row) != len(names) {
			return 0, fmt.Errorf("write %s: row %d: %w: has %d values, schema has %d",
				collection, i, metadata.ErrInvalidArgument, len(row), len(names))
		}
		doc := make(bson.D, 0, len(names))
		for j, name := range names {
			doc = append(doc, bson.E{Key: name, Value: row[j]})
		}
		docs[i] = doc
	}

	result, err := coll.InsertMany(ctx, docs)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", collection, err)
	}
	level.Debug(m.logger).Log("msg", "wrote collection", "collection", collection, "documents", len(result.InsertedIDs))
	return len(result.InsertedIDs), nil
}

func (m *mongoConnector) Close() error {
	m.mu.Lock()
	m.closeCursorLocked(context.Background())
	m.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *mongoConnector) closeCursorLocked(ctx context.Context) {
	if m.cursor != nil {
		m.cursor.Close(ctx)
		m.cursor = nil
	}
}
