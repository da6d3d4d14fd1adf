package repository

import (
	"context"
	"fmt"

	"github.com/lawyeralthomali/legatoo-backend-sub004/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LawSourceRepository handles database operations for the law hierarchy
type LawSourceRepository struct {
	db *pgxpool.Pool
}

// NewLawSourceRepository creates a new law source repository
func NewLawSourceRepository(db *pgxpool.Pool) *LawSourceRepository {
	return &LawSourceRepository{db: db}
}

// CreateTree persists a law source with its full branch/chapter/article
// tree in one transaction. Ingestion is all-or-nothing at the source level.
func (r *LawSourceRepository) CreateTree(ctx context.Context, source *models.LawSource) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO law_sources (
			id, name, type, jurisdiction, issuing_authority, issue_date,
			description, status, document_id
		) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)`,
		source.ID, source.Name, source.Type, source.Jurisdiction,
		source.IssuingAuthority, source.IssueDate, source.Description,
		source.Status, source.DocumentID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert law source: %w", err)
	}

	insertArticle := func(article *models.LawArticle) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO law_articles (
				id, chapter_id, law_source_id, article_number, title,
				content, keywords, order_index
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			article.ID, article.ChapterID, article.LawSourceID,
			article.ArticleNumber, article.Title, article.Content,
			article.Keywords, article.OrderIndex,
		)
		return err
	}

	for bi := range source.Branches {
		branch := &source.Branches[bi]
		_, err = tx.Exec(ctx, `
			INSERT INTO law_branches (
				id, law_source_id, branch_number, branch_name, order_index
			) VALUES ($1, $2, $3, $4, $5)`,
			branch.ID, branch.LawSourceID, branch.BranchNumber,
			branch.BranchName, branch.OrderIndex,
		)
		if err != nil {
			return fmt.Errorf("failed to insert branch %q: %w", branch.BranchName, err)
		}
		for ci := range branch.Chapters {
			chapter := &branch.Chapters[ci]
			_, err = tx.Exec(ctx, `
				INSERT INTO law_chapters (
					id, branch_id, chapter_number, chapter_name, order_index
				) VALUES ($1, $2, $3, $4, $5)`,
				chapter.ID, chapter.BranchID, chapter.ChapterNumber,
				chapter.ChapterName, chapter.OrderIndex,
			)
			if err != nil {
				return fmt.Errorf("failed to insert chapter %q: %w", chapter.ChapterName, err)
			}
			for ai := range chapter.Articles {
				if err := insertArticle(&chapter.Articles[ai]); err != nil {
					return fmt.Errorf("failed to insert article %q: %w", chapter.Articles[ai].ArticleNumber, err)
				}
			}
		}
	}
	for ai := range source.Articles {
		if err := insertArticle(&source.Articles[ai]); err != nil {
			return fmt.Errorf("failed to insert article %q: %w", source.Articles[ai].ArticleNumber, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetByID retrieves a law source without its tree
func (r *LawSourceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.LawSource, error) {
	source := &models.LawSource{}
	err := r.db.QueryRow(ctx, `
		SELECT id, name, type, jurisdiction, issuing_authority,
			COALESCE(issue_date, ''), description, status, document_id,
			created_at, updated_at
		FROM law_sources
		WHERE id = $1`, id).Scan(
		&source.ID, &source.Name, &source.Type, &source.Jurisdiction,
		&source.IssuingAuthority, &source.IssueDate, &source.Description,
		&source.Status, &source.DocumentID, &source.CreatedAt, &source.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return source, nil
}

// GetStatusNote returns the status and the failure note, if any
func (r *LawSourceRepository) GetStatusNote(ctx context.Context, id uuid.UUID) (models.ProcessingStatus, *string, error) {
	var (
		status models.ProcessingStatus
		note   *string
	)
	err := r.db.QueryRow(ctx,
		`SELECT status, status_note FROM law_sources WHERE id = $1`, id,
	).Scan(&status, &note)
	if err != nil {
		return "", nil, err
	}
	return status, note, nil
}

// GetTree retrieves a law source with branches, chapters and articles in
// order_index order
func (r *LawSourceRepository) GetTree(ctx context.Context, id uuid.UUID) (*models.LawSource, error) {
	source, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, law_source_id, branch_number, branch_name, order_index
		FROM law_branches
		WHERE law_source_id = $1
		ORDER BY order_index`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query branches: %w", err)
	}
	defer rows.Close()

	branchIdx := make(map[uuid.UUID]int)
	for rows.Next() {
		var b models.LawBranch
		if err := rows.Scan(&b.ID, &b.LawSourceID, &b.BranchNumber, &b.BranchName, &b.OrderIndex); err != nil {
			return nil, fmt.Errorf("failed to scan branch: %w", err)
		}
		branchIdx[b.ID] = len(source.Branches)
		source.Branches = append(source.Branches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	chapterRows, err := r.db.Query(ctx, `
		SELECT c.id, c.branch_id, c.chapter_number, c.chapter_name, c.order_index
		FROM law_chapters c
		JOIN law_branches b ON b.id = c.branch_id
		WHERE b.law_source_id = $1
		ORDER BY b.order_index, c.order_index`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query chapters: %w", err)
	}
	defer chapterRows.Close()

	chapterLoc := make(map[uuid.UUID][2]int)
	for chapterRows.Next() {
		var c models.LawChapter
		if err := chapterRows.Scan(&c.ID, &c.BranchID, &c.ChapterNumber, &c.ChapterName, &c.OrderIndex); err != nil {
			return nil, fmt.Errorf("failed to scan chapter: %w", err)
		}
		bi, ok := branchIdx[c.BranchID]
		if !ok {
			continue
		}
		chapterLoc[c.ID] = [2]int{bi, len(source.Branches[bi].Chapters)}
		source.Branches[bi].Chapters = append(source.Branches[bi].Chapters, c)
	}
	if err := chapterRows.Err(); err != nil {
		return nil, err
	}

	articleRows, err := r.db.Query(ctx, `
		SELECT id, chapter_id, law_source_id, article_number, title,
			content, keywords, order_index
		FROM law_articles
		WHERE law_source_id = $1
		ORDER BY order_index`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer articleRows.Close()

	for articleRows.Next() {
		var a models.LawArticle
		if err := articleRows.Scan(&a.ID, &a.ChapterID, &a.LawSourceID, &a.ArticleNumber,
			&a.Title, &a.Content, &a.Keywords, &a.OrderIndex); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		if a.Keywords == nil {
			a.Keywords = []string{}
		}
		if a.ChapterID == nil {
			source.Articles = append(source.Articles, a)
			continue
		}
		loc, ok := chapterLoc[*a.ChapterID]
		if !ok {
			continue
		}
		chapters := source.Branches[loc[0]].Chapters
		chapters[loc[1]].Articles = append(chapters[loc[1]].Articles, a)
	}
	return source, articleRows.Err()
}

// UpdateStatus writes a status transition. Validation against the
// transition table happens in the processing service, which is the only
// status writer.
func (r *LawSourceRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.ProcessingStatus, note *string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE law_sources SET
			status = $2,
			status_note = $3,
			updated_at = NOW()
		WHERE id = $1`, id, status, note)
	return err
}

// List retrieves law sources without trees, newest first
func (r *LawSourceRepository) List(ctx context.Context) ([]*models.LawSource, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, type, jurisdiction, issuing_authority,
			COALESCE(issue_date, ''), description, status, document_id,
			created_at, updated_at
		FROM law_sources
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*models.LawSource
	for rows.Next() {
		source := &models.LawSource{}
		if err := rows.Scan(&source.ID, &source.Name, &source.Type, &source.Jurisdiction,
			&source.IssuingAuthority, &source.IssueDate, &source.Description,
			&source.Status, &source.DocumentID, &source.CreatedAt, &source.UpdatedAt); err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

// Delete removes a law source. Branches, chapters, articles and chunks
// cascade at the schema level.
func (r *LawSourceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM law_sources WHERE id = $1`, id)
	return err
}
