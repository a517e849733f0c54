package db

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/yungbote/raptorgraph-backend/internal/config"
	"github.com/yungbote/raptorgraph-backend/internal/domain/rag"
	"github.com/yungbote/raptorgraph-backend/internal/platform/logger"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(cfg config.DatabaseConfig, log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	dsn := cfg.DSN
	if cfg.SSLRootCert != "" {
		dsn = fmt.Sprintf("%s sslrootcert=%s", dsn, cfg.SSLRootCert)
	}

	serviceLog.Info("Connecting to Postgres...")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		serviceLog.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql.DB: %w", err)
	}
	// Pool of 20 with 30 overflow, recycled hourly, connections pinged on checkout.
	sqlDB.SetMaxIdleConns(20)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector;`).Error; err != nil {
		serviceLog.Error("Failed to enable vector extension", "error", err)
		return nil, fmt.Errorf("failed to enable vector extension: %w", err)
	}
	serviceLog.Info("vector extension enabled")

	return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&rag.Document{},
		&rag.Chunk{},
		&rag.Tree{},
		&rag.TreeNode{},
		&rag.TreeEdge{},
		&rag.TreeNodeChunk{},
		&rag.Embedding{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}

	s.log.Info("Configuring foreign key relationships for postgres tables...")
	fks := []struct {
		name string
		ddl  string
	}{
		{"fk_chunks_doc_id_documents", `
			ALTER TABLE "chunks"
			ADD CONSTRAINT "fk_chunks_doc_id_documents"
			FOREIGN KEY ("doc_id")
			REFERENCES "documents"("id")
			ON DELETE CASCADE`},
		{"fk_trees_doc_id_documents", `
			ALTER TABLE "trees"
			ADD CONSTRAINT "fk_trees_doc_id_documents"
			FOREIGN KEY ("doc_id")
			REFERENCES "documents"("id")
			ON DELETE CASCADE`},
		{"fk_tree_nodes_tree_id_trees", `
			ALTER TABLE "tree_nodes"
			ADD CONSTRAINT "fk_tree_nodes_tree_id_trees"
			FOREIGN KEY ("tree_id")
			REFERENCES "trees"("id")
			ON DELETE CASCADE`},
		{"fk_tree_edges_parent_id_tree_nodes", `
			ALTER TABLE "tree_edges"
			ADD CONSTRAINT "fk_tree_edges_parent_id_tree_nodes"
			FOREIGN KEY ("parent_id")
			REFERENCES "tree_nodes"("id")
			ON DELETE CASCADE`},
		{"fk_tree_edges_child_id_tree_nodes", `
			ALTER TABLE "tree_edges"
			ADD CONSTRAINT "fk_tree_edges_child_id_tree_nodes"
			FOREIGN KEY ("child_id")
			REFERENCES "tree_nodes"("id")
			ON DELETE CASCADE`},
		{"fk_tree_node_chunks_node_id_tree_nodes", `
			ALTER TABLE "tree_node_chunks"
			ADD CONSTRAINT "fk_tree_node_chunks_node_id_tree_nodes"
			FOREIGN KEY ("node_id")
			REFERENCES "tree_nodes"("id")
			ON DELETE CASCADE`},
		{"fk_tree_node_chunks_chunk_id_chunks", `
			ALTER TABLE "tree_node_chunks"
			ADD CONSTRAINT "fk_tree_node_chunks_chunk_id_chunks"
			FOREIGN KEY ("chunk_id")
			REFERENCES "chunks"("id")
			ON DELETE CASCADE`},
	}
	for _, fk := range fks {
		var exists bool
		if err := s.db.Raw(
			`SELECT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = ?)`, fk.name,
		).Scan(&exists).Error; err != nil {
			return fmt.Errorf("failed to check %s: %w", fk.name, err)
		}
		if exists {
			continue
		}
		if err := s.db.Exec(fk.ddl).Error; err != nil {
			return fmt.Errorf("failed to add %s: %w", fk.name, err)
		}
	}

	s.log.Info("Creating vector index on embeddings...")
	if err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS ix_embeddings_v_hnsw
		ON "embeddings"
		USING hnsw ("v" vector_cosine_ops)
	`).Error; err != nil {
		return fmt.Errorf("failed to create hnsw index: %w", err)
	}

	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
