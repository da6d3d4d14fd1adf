package repository

import (
	"context"
	"fmt"

	"github.com/lawyeralthomali/legatoo-backend-sub004/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CategoryRepository handles database operations for the category tree
type CategoryRepository struct {
	db *pgxpool.Pool
}

// NewCategoryRepository creates a new category repository
func NewCategoryRepository(db *pgxpool.Pool) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// Create inserts a root category and returns its id
func (r *CategoryRepository) Create(ctx context.Context, name string) (int, error) {
	var id int
	err := r.db.QueryRow(ctx,
		`INSERT INTO categories (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	return id, err
}

// Load reads the whole category table into an in-memory tree. Arena ids
// are assigned in table order, so deleted rows leave no gaps; the returned
// map translates database ids to arena ids. Link enforces the no-cycle
// invariant while attaching parents.
func (r *CategoryRepository) Load(ctx context.Context) (*models.CategoryTree, map[int]int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, parent_id FROM categories ORDER BY id`)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	tree := models.NewCategoryTree()
	arena := make(map[int]int)
	type link struct{ id, parent int }
	var links []link
	for rows.Next() {
		var (
			id       int
			name     string
			parentID *int
		)
		if err := rows.Scan(&id, &name, &parentID); err != nil {
			return nil, nil, err
		}
		arenaID, err := tree.Add(name)
		if err != nil {
			return nil, nil, err
		}
		arena[id] = arenaID
		if parentID != nil {
			links = append(links, link{id: id, parent: *parentID})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	for _, l := range links {
		parentArena, ok := arena[l.parent]
		if !ok {
			return nil, nil, fmt.Errorf("category %d references missing parent %d", l.id, l.parent)
		}
		if err := tree.Link(arena[l.id], parentArena); err != nil {
			return nil, nil, err
		}
	}
	return tree, arena, nil
}

// SetParent attaches a category under a parent, mirroring the in-memory
// cycle check performed by the caller
func (r *CategoryRepository) SetParent(ctx context.Context, id, parentID int) error {
	_, err := r.db.Exec(ctx,
		`UPDATE categories SET parent_id = $2 WHERE id = $1`, id, parentID)
	return err
}
