package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"geo-insight/internal/mapping"

	_ "modernc.org/sqlite"
)

// DatasetMapping configuração persistida de um dataset
type DatasetMapping struct {
	DatasetID string         `json:"datasetId"`
	Config    mapping.Config `json:"config"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Database gerenciador do banco de dados SQLite das configurações de mapeamento
type Database struct {
	db   *sql.DB
	path string
}

// NewDatabase abre o banco e cria as tabelas
func NewDatabase(dbPath string) (*Database, error) {
	db := &Database{path: dbPath}
	if err := db.connect(); err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := db.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init tables: %w", err)
	}

	return db, nil
}

// connect conecta ao banco de dados
func (d *Database) connect() error {
	var err error
	d.db, err = sql.Open("sqlite", d.path)
	if err != nil {
		return err
	}

	// Uma conexão só: serializa escritas e mantém bancos :memory: vivos
	d.db.SetMaxOpenConns(1)
	d.db.SetMaxIdleConns(1)

	return d.db.Ping()
}

// initTables cria as tabelas necessárias
func (d *Database) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS dataset_mappings (
			dataset_id TEXT PRIMARY KEY,
			value_path TEXT NOT NULL,
			timestamp_path TEXT NOT NULL,
			x_path TEXT,
			y_path TEXT,
			z_path TEXT,
			sensor_id_path TEXT,
			sensor_type_path TEXT,
			unit_path TEXT,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_mappings_updated ON dataset_mappings(updated_at)`,
	}

	for _, query := range queries {
		if _, err := d.db.Exec(query); err != nil {
			return fmt.Errorf("exec schema query: %w", err)
		}
	}

	return nil
}

// SaveMapping grava a configuração do dataset, sobrescrevendo a anterior
func (d *Database) SaveMapping(ctx context.Context, datasetID string, cfg mapping.Config) error {
	if datasetID == "" {
		return errors.New("save mapping: empty dataset id")
	}
	if cfg.ValuePath == "" || cfg.TimestampPath == "" {
		return errors.New("save mapping: value and timestamp paths are required")
	}

	query := `INSERT OR REPLACE INTO dataset_mappings
		(dataset_id, value_path, timestamp_path, x_path, y_path, z_path,
		 sensor_id_path, sensor_type_path, unit_path, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := d.db.ExecContext(ctx, query,
		datasetID,
		cfg.ValuePath,
		cfg.TimestampPath,
		cfg.XPath,
		cfg.YPath,
		cfg.ZPath,
		cfg.SensorIDPath,
		cfg.SensorTypePath,
		cfg.UnitPath,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save mapping %s: %w", datasetID, err)
	}
	return nil
}

// LoadMapping recupera a configuração; nil quando o dataset não tem uma
func (d *Database) LoadMapping(ctx context.Context, datasetID string) (*DatasetMapping, error) {
	query := `SELECT dataset_id, value_path, timestamp_path, x_path, y_path, z_path,
		sensor_id_path, sensor_type_path, unit_path, updated_at
		FROM dataset_mappings WHERE dataset_id = ?`

	m, err := scanMapping(d.db.QueryRowContext(ctx, query, datasetID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load mapping %s: %w", datasetID, err)
	}
	return m, nil
}

// ListMappings lista todas as configurações, mais recente primeiro
func (d *Database) ListMappings(ctx context.Context) ([]*DatasetMapping, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT dataset_id, value_path, timestamp_path,
		x_path, y_path, z_path, sensor_id_path, sensor_type_path, unit_path, updated_at
		FROM dataset_mappings ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []*DatasetMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMapping(row rowScanner) (*DatasetMapping, error) {
	var (
		m         DatasetMapping
		x, y, z   sql.NullString
		sid, styp sql.NullString
		unit      sql.NullString
		updatedAt int64
	)
	err := row.Scan(
		&m.DatasetID,
		&m.Config.ValuePath,
		&m.Config.TimestampPath,
		&x, &y, &z,
		&sid, &styp, &unit,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Config.XPath = x.String
	m.Config.YPath = y.String
	m.Config.ZPath = z.String
	m.Config.SensorIDPath = sid.String
	m.Config.SensorTypePath = styp.String
	m.Config.UnitPath = unit.String
	m.UpdatedAt = time.UnixMilli(updatedAt)
	return &m, nil
}

// MappingSaver adapta o banco ao contrato de persistência do
// configurador, que sinaliza sucesso por booleano
func (d *Database) MappingSaver(datasetID string) func(ctx context.Context, cfg mapping.Config) (bool, error) {
	return func(ctx context.Context, cfg mapping.Config) (bool, error) {
		if err := d.SaveMapping(ctx, datasetID, cfg); err != nil {
			return false, err
		}
		return true, nil
	}
}

// Close fecha a conexão com o banco
func (d *Database) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}
