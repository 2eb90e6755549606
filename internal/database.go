package internal

import (
	"fmt"
	"log/slog"

	"DF-TPLGEN/internal/config"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

func InitDB(cfg *config.Config) error {
	dsn := cfg.Database.DSN()

	gormCfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	}
	if cfg.Server.IsProduction() {
		gormCfg.Logger = logger.Default.LogMode(logger.Warn)
	}

	var err error
	DB, err = gorm.Open(mysql.Open(dsn), gormCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := autoMigrate(); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	slog.Info("database connected and migrated", "host", cfg.Database.Host, "db", cfg.Database.DBName)
	return nil
}

type tableSpec struct {
	name    string
	create  string
	columns []columnSpec
}

type columnSpec struct {
	name string
	ddl  string
}

// Tables are created only if missing and existing rows are preserved.
// Columns added after a table first shipped are listed so older databases
// pick them up.
var schema = []tableSpec{
	{
		name: "document_templates",
		create: `
        CREATE TABLE IF NOT EXISTS document_templates (
            id varchar(36) PRIMARY KEY,
            name longtext NOT NULL,
            description longtext,
            category varchar(100),
            kind varchar(16) NOT NULL,
            uso_count bigint NOT NULL DEFAULT 0,
            conteudo_html longtext,
            variaveis json,
            cabecalho_id varchar(36),
            landscape boolean NOT NULL DEFAULT false,
            pdf_path longtext,
            pages json,
            fields json,
            default_font_size double,
            created_at datetime(3) NULL,
            updated_at datetime(3) NULL,
            deleted_at datetime(3) NULL,
            INDEX idx_document_templates_category (category),
            INDEX idx_document_templates_deleted_at (deleted_at)
        )`,
		columns: []columnSpec{
			{"description", "description longtext"},
			{"category", "category varchar(100)"},
			{"uso_count", "uso_count bigint NOT NULL DEFAULT 0"},
			{"cabecalho_id", "cabecalho_id varchar(36)"},
			{"landscape", "landscape boolean NOT NULL DEFAULT false"},
			{"pages", "pages json"},
			{"fields", "fields json"},
			{"default_font_size", "default_font_size double"},
		},
	},
	{
		name: "cabecalhos",
		create: `
        CREATE TABLE IF NOT EXISTS cabecalhos (
            id varchar(36) PRIMARY KEY,
            name longtext NOT NULL,
            conteudo_html longtext,
            variaveis json,
            created_at datetime(3) NULL,
            updated_at datetime(3) NULL
        )`,
	},
	{
		name: "generation_logs",
		create: `
        CREATE TABLE IF NOT EXISTS generation_logs (
            id varchar(36) PRIMARY KEY,
            template_id varchar(36) NOT NULL,
            template_name longtext,
            kind varchar(16) NOT NULL,
            format varchar(10) NOT NULL,
            filename longtext,
            processo_id varchar(36),
            cliente_id varchar(36),
            dossie_id varchar(36),
            funcionario_id varchar(36),
            unresolved json,
            malformed json,
            duration_ms bigint NOT NULL,
            created_at datetime(3) NULL,
            INDEX idx_generation_logs_template_id (template_id),
            INDEX idx_generation_logs_created_at (created_at)
        )`,
		columns: []columnSpec{
			{"dossie_id", "dossie_id varchar(36)"},
			{"funcionario_id", "funcionario_id varchar(36)"},
			{"malformed", "malformed json"},
		},
	},
	{
		name: "clientes",
		create: `
        CREATE TABLE IF NOT EXISTS clientes (
            id varchar(36) PRIMARY KEY,
            nome longtext,
            nif varchar(32),
            numero_cliente varchar(64),
            morada longtext,
            codigo_postal varchar(16),
            localidade longtext,
            pais longtext,
            email longtext,
            telefone varchar(32),
            iban varchar(34),
            data_nascimento datetime(3) NULL,
            documento_identificacao longtext
        )`,
	},
	{
		name: "processos",
		create: `
        CREATE TABLE IF NOT EXISTS processos (
            id varchar(36) PRIMARY KEY,
            cliente_id varchar(36),
            numero varchar(64),
            tipo longtext,
            estado longtext,
            tribunal longtext,
            descricao longtext,
            contraparte longtext,
            data_abertura datetime(3) NULL,
            data_encerramento datetime(3) NULL,
            valor decimal(15,2) NULL,
            honorarios decimal(15,2) NULL,
            INDEX idx_processos_cliente_id (cliente_id)
        )`,
	},
	{
		name: "dossies",
		create: `
        CREATE TABLE IF NOT EXISTS dossies (
            id varchar(36) PRIMARY KEY,
            referencia varchar(64),
            titulo longtext,
            estado longtext,
            data_criacao datetime(3) NULL,
            total_documentos bigint NULL
        )`,
	},
	{
		name: "funcionarios",
		create: `
        CREATE TABLE IF NOT EXISTS funcionarios (
            id varchar(36) PRIMARY KEY,
            nome longtext,
            cargo longtext,
            email longtext,
            telefone varchar(32),
            numero_cedula varchar(32)
        )`,
	},
}

func autoMigrate() error {
	for _, table := range schema {
		slog.Debug("ensuring table exists", "table", table.name)
		if err := DB.Exec(table.create).Error; err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
		for _, col := range table.columns {
			stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table.name, col.ddl)
			if err := ensureColumn(table.name, col.name, stmt); err != nil {
				return err
			}
		}
	}
	return nil
}

func ensureColumn(table, column, statement string) error {
	if DB.Migrator().HasColumn(table, column) {
		return nil
	}

	slog.Info("adding missing column", "table", table, "column", column)
	if err := DB.Exec(statement).Error; err != nil {
		return fmt.Errorf("failed to add column %s.%s: %w", table, column, err)
	}

	return nil
}

func CloseDB() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}
