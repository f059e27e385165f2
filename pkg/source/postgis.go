package source

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // registers the "postgres" driver
	"github.com/paulmach/orb/geojson"
)

// DefaultTable is the road table queried when none is configured.
const DefaultTable = "roads"

// ErrInvalidTable is returned for table names that are not plain identifiers.
var ErrInvalidTable = errors.New("invalid table name")

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// PostGISConfig holds connection settings for the road database.
type PostGISConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Table    string
}

// DSN returns a lib/pq keyword/value connection string.
func (c PostGISConfig) DSN() string {
	kv := []struct{ k, v string }{
		{"host", c.Host},
		{"port", c.Port},
		{"user", c.User},
		{"password", c.Password},
		{"dbname", c.Database},
		{"sslmode", c.SSLMode},
	}
	var parts []string
	for _, p := range kv {
		if p.v == "" {
			continue
		}
		parts = append(parts, p.k+"="+quoteDSNValue(p.v))
	}
	return strings.Join(parts, " ")
}

func quoteDSNValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// PostGIS reads road geometries from a PostGIS table via ST_AsGeoJSON. The
// connection is opened on first use, so a PostGIS source that is never
// queried never touches the network.
type PostGIS struct {
	cfg   PostGISConfig
	table string

	mu     sync.Mutex
	db     *sqlx.DB
	ownsDB bool
}

// NewPostGIS returns a lazily connecting PostGIS source.
func NewPostGIS(cfg PostGISConfig) (*PostGIS, error) {
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return &PostGIS{cfg: cfg, table: table, ownsDB: true}, nil
}

// NewPostGISFromDB wraps an existing handle. Close does not close db.
func NewPostGISFromDB(db *sqlx.DB, table string) (*PostGIS, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return &PostGIS{table: table, db: db}, nil
}

func (p *PostGIS) conn(ctx context.Context) (*sqlx.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db != nil {
		return p.db, nil
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", p.cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to %s:%s/%s: %w", p.cfg.Host, p.cfg.Port, p.cfg.Database, err)
	}
	p.db = db
	return db, nil
}

type roadRow struct {
	ID      string         `db:"id"`
	GeoJSON sql.NullString `db:"geojson"`
}

// Roads runs the full-table geometry query. Rows whose geometry is NULL or
// cannot be decoded are returned with a nil Geometry so the builder counts
// them as skipped.
func (p *PostGIS) Roads(ctx context.Context) ([]Road, error) {
	db, err := p.conn(ctx)
	if err != nil {
		return nil, err
	}

	var rows []roadRow
	query := fmt.Sprintf("SELECT id::text AS id, ST_AsGeoJSON(geom) AS geojson FROM %s", p.table)
	if err := db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("query roads: %w", err)
	}

	roads := make([]Road, 0, len(rows))
	var undecodable int
	for _, row := range rows {
		road := Road{ID: row.ID}
		if row.GeoJSON.Valid {
			g, err := geojson.UnmarshalGeometry([]byte(row.GeoJSON.String))
			if err != nil {
				undecodable++
			} else {
				road.Geometry = g.Geometry()
			}
		}
		roads = append(roads, road)
	}
	if undecodable > 0 {
		log.Printf("Warning: %d roads in %s had undecodable geometry", undecodable, p.table)
	}

	return roads, nil
}

// Count returns the number of rows in the road table.
func (p *PostGIS) Count(ctx context.Context) (int64, error) {
	db, err := p.conn(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.GetContext(ctx, &n, fmt.Sprintf("SELECT COUNT(*) FROM %s", p.table)); err != nil {
		return 0, fmt.Errorf("count roads: %w", err)
	}
	return n, nil
}

// SampleIDs returns up to limit road ids.
func (p *PostGIS) SampleIDs(ctx context.Context, limit int) ([]string, error) {
	db, err := p.conn(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	query := fmt.Sprintf("SELECT id::text FROM %s LIMIT $1", p.table)
	if err := db.SelectContext(ctx, &ids, query, limit); err != nil {
		return nil, fmt.Errorf("sample road ids: %w", err)
	}
	return ids, nil
}

// Close closes the connection pool if this source opened it.
func (p *PostGIS) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil || !p.ownsDB {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}
