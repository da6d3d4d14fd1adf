package handlers

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/lawyeralthomali/legatoo-backend-sub004/repository"

	"github.com/gin-gonic/gin"
)

// CategoryHandler handles HTTP requests for the classification tree
type CategoryHandler struct {
	categories *repository.CategoryRepository
}

// NewCategoryHandler creates a new category handler
func NewCategoryHandler(categories *repository.CategoryRepository) *CategoryHandler {
	return &CategoryHandler{categories: categories}
}

// Create handles POST /api/categories
func (h *CategoryHandler) Create(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "INVALID_BODY", "name is required")
		return
	}
	id, err := h.categories.Create(c.Request.Context(), req.Name)
	if err != nil {
		fail(c, http.StatusInternalServerError, "DATABASE_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    gin.H{"id": id, "name": req.Name},
	})
}

// SetParent handles PUT /api/categories/:id/parent. The link is validated
// against the in-memory tree first so a cycle never reaches the database.
func (h *CategoryHandler) SetParent(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, "INVALID_ID", "invalid category id")
		return
	}
	var req struct {
		ParentID int `json:"parent_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "INVALID_BODY", "parent_id is required")
		return
	}

	tree, arena, err := h.categories.Load(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, "DATABASE_ERROR", err.Error())
		return
	}
	arenaID, ok := arena[id]
	parentArena, pok := arena[req.ParentID]
	if !ok || !pok {
		fail(c, http.StatusNotFound, "NOT_FOUND", "category not found")
		return
	}
	if err := tree.Link(arenaID, parentArena); err != nil {
		fail(c, http.StatusUnprocessableEntity, "CATEGORY_CYCLE", err.Error())
		return
	}
	if err := h.categories.SetParent(c.Request.Context(), id, req.ParentID); err != nil {
		fail(c, http.StatusInternalServerError, "DATABASE_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"id": id, "parent_id": req.ParentID},
	})
}

// Children handles GET /api/categories/:id/children
func (h *CategoryHandler) Children(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, "INVALID_ID", "invalid category id")
		return
	}
	tree, arena, err := h.categories.Load(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, "DATABASE_ERROR", err.Error())
		return
	}
	arenaID, ok := arena[id]
	if !ok {
		fail(c, http.StatusNotFound, "NOT_FOUND", "category not found")
		return
	}

	toDB := make(map[int]int, len(arena))
	for dbID, aid := range arena {
		toDB[aid] = dbID
	}
	type child struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	children := []child{}
	for _, aid := range tree.Children(arenaID) {
		if cat := tree.Get(aid); cat != nil {
			children = append(children, child{ID: toDB[aid], Name: cat.Name})
		}
	}
	sort.Slice(children, func(i, j int) bool { return children[i].ID < children[j].ID })
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"id": id, "children": children},
	})
}

// List handles GET /api/categories
func (h *CategoryHandler) List(c *gin.Context) {
	tree, arena, err := h.categories.Load(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, "DATABASE_ERROR", err.Error())
		return
	}

	// report database ids, not arena ids
	toDB := make(map[int]int, len(arena))
	dbIDs := make([]int, 0, len(arena))
	for dbID, arenaID := range arena {
		toDB[arenaID] = dbID
		dbIDs = append(dbIDs, dbID)
	}
	sort.Ints(dbIDs)

	type node struct {
		ID       int    `json:"id"`
		Name     string `json:"name"`
		ParentID *int   `json:"parent_id,omitempty"`
		Children []int  `json:"children"`
	}
	out := make([]node, 0, len(dbIDs))
	for _, dbID := range dbIDs {
		arenaID := arena[dbID]
		cat := tree.Get(arenaID)
		if cat == nil {
			continue
		}
		n := node{ID: dbID, Name: cat.Name, Children: []int{}}
		if cat.ParentID != nil {
			pid := toDB[*cat.ParentID]
			n.ParentID = &pid
		}
		for _, child := range tree.Children(arenaID) {
			n.Children = append(n.Children, toDB[child])
		}
		out = append(out, n)
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"categories": out},
	})
}
