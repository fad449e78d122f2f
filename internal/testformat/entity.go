package testformat

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// EntityKind discriminates entity declarations.
type EntityKind string

const (
	EntityClient     EntityKind = "client"
	EntityDatabase   EntityKind = "database"
	EntityCollection EntityKind = "collection"
	EntitySession    EntityKind = "session"
	EntityBucket     EntityKind = "bucket"
	EntityThread     EntityKind = "thread"
)

// Entity is a named handle referenced by operations. It is implemented by
// *Client, *Database, *Collection, *Session, *Bucket and *Thread only.
type Entity interface {
	EntityID() string
	Kind() EntityKind
	isEntity()
}

// EntityDecl is one element of createEntities. It wraps exactly one Entity
// variant, selected by the single key present in the source document.
type EntityDecl struct {
	Entity
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *EntityDecl) UnmarshalYAML(node *yaml.Node) error {
	node = resolveAlias(node)
	if node.Kind != yaml.MappingNode {
		return &SchemaError{Field: "createEntities", Message: fmt.Sprintf("line %d: entity must be a mapping", node.Line)}
	}
	if len(node.Content) != 2 {
		keys := mappingKeys(node)
		return &SchemaError{
			Field:   "createEntities",
			Message: fmt.Sprintf("line %d: entity must declare exactly one kind, got %d (%s)", node.Line, len(keys), strings.Join(keys, ", ")),
		}
	}

	key, value := node.Content[0].Value, node.Content[1]
	var entity Entity
	switch EntityKind(key) {
	case EntityClient:
		entity = &Client{}
	case EntityDatabase:
		entity = &Database{}
	case EntityCollection:
		entity = &Collection{}
	case EntitySession:
		entity = &Session{}
	case EntityBucket:
		entity = &Bucket{}
	case EntityThread:
		entity = &Thread{}
	default:
		return &SchemaError{Field: "createEntities", Message: fmt.Sprintf("line %d: unknown entity kind %q", node.Line, key)}
	}

	if err := strictDecode(value, entity); err != nil {
		return &SchemaError{Field: "createEntities." + key, Message: err.Error()}
	}
	if entity.EntityID() == "" {
		return &SchemaError{Field: "createEntities." + key, Message: fmt.Sprintf("line %d: id is required", node.Line)}
	}
	d.Entity = entity
	return nil
}

// Client declares a client entity.
type Client struct {
	ID                            string                `yaml:"id"`
	URIOptions                    Document              `yaml:"uriOptions,omitempty"`
	UseMultipleMongoses           *bool                 `yaml:"useMultipleMongoses,omitempty"`
	ObserveEvents                 []string              `yaml:"observeEvents,omitempty"`
	IgnoreCommandMonitoringEvents []string              `yaml:"ignoreCommandMonitoringEvents,omitempty"`
	ObserveSensitiveCommands      *bool                 `yaml:"observeSensitiveCommands,omitempty"`
	ServerAPI                     *ServerAPI            `yaml:"serverApi,omitempty"`
	StoreEventsAsEntities         []StoreEventsAsEntity `yaml:"storeEventsAsEntities,omitempty"`
}

// ServerAPI declares the stable API options of a client.
type ServerAPI struct {
	Version           string `yaml:"version"`
	Strict            *bool  `yaml:"strict,omitempty"`
	DeprecationErrors *bool  `yaml:"deprecationErrors,omitempty"`
}

// StoreEventsAsEntity asks the executor to collect the named events into an
// array entity.
type StoreEventsAsEntity struct {
	ID     string   `yaml:"id"`
	Events []string `yaml:"events"`
}

// Database declares a database entity.
type Database struct {
	ID              string                       `yaml:"id"`
	Client          string                       `yaml:"client"`
	DatabaseName    string                       `yaml:"databaseName"`
	DatabaseOptions *CollectionOrDatabaseOptions `yaml:"databaseOptions,omitempty"`
}

// Collection declares a collection entity.
type Collection struct {
	ID                string                       `yaml:"id"`
	Database          string                       `yaml:"database"`
	CollectionName    string                       `yaml:"collectionName"`
	CollectionOptions *CollectionOrDatabaseOptions `yaml:"collectionOptions,omitempty"`
}

// Session declares a session entity.
type Session struct {
	ID             string   `yaml:"id"`
	Client         string   `yaml:"client"`
	SessionOptions Document `yaml:"sessionOptions,omitempty"`
}

// Bucket declares a GridFS bucket entity.
type Bucket struct {
	ID            string   `yaml:"id"`
	Database      string   `yaml:"database"`
	BucketOptions Document `yaml:"bucketOptions,omitempty"`
}

// Thread declares a worker thread that operations can be scheduled onto.
type Thread struct {
	ID string `yaml:"id"`
}

func (c *Client) EntityID() string     { return c.ID }
func (c *Database) EntityID() string   { return c.ID }
func (c *Collection) EntityID() string { return c.ID }
func (c *Session) EntityID() string    { return c.ID }
func (c *Bucket) EntityID() string     { return c.ID }
func (c *Thread) EntityID() string     { return c.ID }

func (*Client) Kind() EntityKind     { return EntityClient }
func (*Database) Kind() EntityKind   { return EntityDatabase }
func (*Collection) Kind() EntityKind { return EntityCollection }
func (*Session) Kind() EntityKind    { return EntitySession }
func (*Bucket) Kind() EntityKind     { return EntityBucket }
func (*Thread) Kind() EntityKind     { return EntityThread }

func (*Client) isEntity()     {}
func (*Database) isEntity()   {}
func (*Collection) isEntity() {}
func (*Session) isEntity()    {}
func (*Bucket) isEntity()     {}
func (*Thread) isEntity()     {}

// CollectionOrDatabaseOptions are the options shared by database and
// collection entities.
type CollectionOrDatabaseOptions struct {
	ReadConcern    *ReadConcern    `yaml:"readConcern,omitempty"`
	ReadPreference *ReadPreference `yaml:"readPreference,omitempty"`
	WriteConcern   *WriteConcern   `yaml:"writeConcern,omitempty"`
}

// ReadConcern declares a read concern level.
type ReadConcern struct {
	Level string `yaml:"level"`
}

// ReadPreference declares a read preference.
type ReadPreference struct {
	Mode                string     `yaml:"mode"`
	TagSets             []Document `yaml:"tagSets,omitempty"`
	MaxStalenessSeconds *int64     `yaml:"maxStalenessSeconds,omitempty"`
	Hedge               *Hedge     `yaml:"hedge,omitempty"`
}

// Hedge declares hedged read options.
type Hedge struct {
	Enabled *bool `yaml:"enabled,omitempty"`
}

// WriteConcern declares a write concern. W is either a number or a tag such
// as "majority".
type WriteConcern struct {
	W          any    `yaml:"w,omitempty"`
	Journal    *bool  `yaml:"journal,omitempty"`
	WTimeoutMS *int64 `yaml:"wtimeoutMS,omitempty"`
}

// EntitiesOfKind returns the declarations of one kind in declaration order.
func (f *TestFile) EntitiesOfKind(kind EntityKind) []Entity {
	var out []Entity
	for _, d := range f.CreateEntities {
		if d.Entity != nil && d.Kind() == kind {
			out = append(out, d.Entity)
		}
	}
	return out
}

// Entity looks up a declared entity by id.
func (f *TestFile) Entity(id string) (Entity, bool) {
	for _, d := range f.CreateEntities {
		if d.Entity != nil && d.EntityID() == id {
			return d.Entity, true
		}
	}
	return nil, false
}

func mappingKeys(node *yaml.Node) []string {
	keys := make([]string, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keys = append(keys, node.Content[i].Value)
	}
	sort.Strings(keys)
	return keys
}
