package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/yungbote/chatstream-backend/internal/logger"
	"github.com/yungbote/chatstream-backend/internal/types"
	"github.com/yungbote/chatstream-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "chatstream", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	serviceLog.Info("Connecting to Postgres...")
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		serviceLog.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &PostgresService{db: gdb, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	if err := s.db.AutoMigrate(
		&types.User{},
		&types.Chat{},
		&types.Message{},
		&types.StreamRecord{},
		&types.Document{},
		&types.Suggestion{},
	); err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}
	s.log.Info("Configuring foreign key relationships for postgres tables...")
	stmts := []string{
		`ALTER TABLE "chat"
		 ADD CONSTRAINT "fk_chat_owner_id"
		 FOREIGN KEY ("owner_id") REFERENCES "user"("id")
		 ON DELETE CASCADE`,
		`ALTER TABLE "message"
		 ADD CONSTRAINT "fk_message_chat_id"
		 FOREIGN KEY ("chat_id") REFERENCES "chat"("id")
		 ON DELETE CASCADE`,
		`ALTER TABLE "stream_record"
		 ADD CONSTRAINT "fk_stream_record_chat_id"
		 FOREIGN KEY ("chat_id") REFERENCES "chat"("id")
		 ON DELETE CASCADE`,
		`ALTER TABLE "suggestion"
		 ADD CONSTRAINT "fk_suggestion_document_id"
		 FOREIGN KEY ("document_id") REFERENCES "document"("id")
		 ON DELETE CASCADE`,
	}
	for _, stmt := range stmts {
		if err := s.db.Exec(stmt).Error; err != nil {
			// Re-running migrations re-adds constraints; duplicates are fine.
			s.log.Debug("Foreign key statement skipped", "error", err)
		}
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
