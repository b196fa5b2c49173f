package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/config"
	"github.com/iWorld-y/bazi_agent/app/bazi_agent/pkg/model"
)

// ErrNotFound 报告不存在
var ErrNotFound = errors.New("report not found")

const schema = `
CREATE TABLE IF NOT EXISTS prediction_reports (
	id                   UUID PRIMARY KEY,
	user_name            TEXT NOT NULL,
	report_type          TEXT NOT NULL,
	title                TEXT NOT NULL,
	sections_count       INTEGER NOT NULL,
	total_content_length INTEGER NOT NULL,
	document             JSONB NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS report_sections (
	id          BIGSERIAL PRIMARY KEY,
	report_id   UUID NOT NULL REFERENCES prediction_reports(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	section_key TEXT NOT NULL,
	title       TEXT NOT NULL,
	agent       TEXT NOT NULL,
	content     TEXT NOT NULL
);`

type Storage struct {
	db *sql.DB
}

func NewStorage(cfg config.DBConfig) (*Storage, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	s := NewWithDB(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB 使用已有连接
func NewWithDB(db *sql.DB) *Storage {
	return &Storage{db: db}
}

// Migrate 创建表结构
func (s *Storage) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

// SaveReport 保存报告及其各部分，返回报告 ID
func (s *Storage) SaveReport(ctx context.Context, r *model.PredictionReport) (string, error) {
	doc, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	created := r.GeneratedAt
	if created.IsZero() {
		created = time.Now()
	}
	id := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO prediction_reports
		(id, user_name, report_type, title, sections_count, total_content_length, document, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, r.Info.UserName, string(r.Info.ReportType), r.Info.Title,
		r.Summary.SectionsCount, r.Summary.TotalContentLength, doc, created)
	if err != nil {
		return "", rollback(tx, err)
	}

	for i, sec := range r.Sections {
		_, err = tx.ExecContext(ctx, `INSERT INTO report_sections
			(report_id, position, section_key, title, agent, content)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			id, i, sec.Key, sec.Title, sec.Agent, sanitize(sec.Content))
		if err != nil {
			return "", rollback(tx, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// GetReport 读取报告
func (s *Storage) GetReport(ctx context.Context, id string) (*model.PredictionReport, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	var (
		doc     []byte
		created time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT document, created_at FROM prediction_reports WHERE id = $1`, id).Scan(&doc, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query report %s: %w", id, err)
	}

	var r model.PredictionReport
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}
	r.GeneratedAt = created
	return &r, nil
}

func rollback(tx *sql.Tx, err error) error {
	if rerr := tx.Rollback(); rerr != nil {
		err = fmt.Errorf("%w: %v", err, rerr)
	}
	return err
}

// sanitize 移除无效的 UTF-8 字符和 NULL 字节，PostgreSQL 文本字段不支持 NULL 字节
func sanitize(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return strings.ReplaceAll(s, "\x00", "")
}
