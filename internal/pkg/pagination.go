package pkg

import (
	"context"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/mqttbench/internal/domain"
	"gorm.io/gorm"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 100
)

// reservedParams lists query parameter names used for pagination/sorting, not for filtering.
var reservedParams = map[string]bool{
	"page":      true,
	"page_size": true,
	"sort":      true,
	"_csrf":     true,
}

// validFieldName matches only alphanumeric characters and underscores.
var validFieldName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ListOptions names the columns a list query may sort and filter on.
type ListOptions struct {
	SortFields   []string
	FilterFields []string
	// DefaultSort is used when the request carries no usable sort, e.g. "id:asc".
	DefaultSort string
}

// ParsePageRequest extracts pagination, sorting, and filtering parameters from query params.
// defaultSort applies when the query has no sort parameter.
func ParsePageRequest(c *gin.Context, defaultSort string) domain.PageRequest {
	page, _ := strconv.Atoi(c.DefaultQuery("page", strconv.Itoa(defaultPage)))
	if page < 1 {
		page = defaultPage
	}

	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	sort := c.DefaultQuery("sort", defaultSort)

	filter := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if reservedParams[key] {
			continue
		}
		if len(values) > 0 && values[0] != "" {
			filter[key] = values[0]
		}
	}

	return domain.PageRequest{
		Page:     page,
		PageSize: pageSize,
		Sort:     sort,
		Filter:   filter,
	}
}

// FindPage counts and loads one page of T using the filter, sort and
// pagination scopes. The model table is taken from T.
func FindPage[T any](ctx context.Context, db *gorm.DB, req domain.PageRequest, opts ListOptions) (*domain.PageResult[T], error) {
	var model T
	base := db.WithContext(ctx).Model(&model).Scopes(Filter(req, opts.FilterFields))

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, MapDBError(err)
	}

	order := req
	if !sortApplies(req.Sort, opts.SortFields) {
		order.Sort = opts.DefaultSort
	}

	var items []T
	if err := base.Scopes(
		Paginate(req),
		Sort(order, opts.SortFields),
	).Find(&items).Error; err != nil {
		return nil, MapDBError(err)
	}

	return NewPageResult(items, total, req), nil
}

// Paginate returns a GORM scope that applies LIMIT and OFFSET based on the page request.
func Paginate(req domain.PageRequest) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		page := max(req.Page, 1)
		offset := (page - 1) * req.PageSize
		return db.Offset(offset).Limit(req.PageSize)
	}
}

// Sort returns a GORM scope that applies ORDER BY based on the page request.
// Only field names present in the allowed list are accepted; others are silently ignored.
// Field names are validated against a strict pattern to prevent SQL injection.
func Sort(req domain.PageRequest, allowed []string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		field, direction, ok := parseSort(req.Sort)
		if !ok || !isAllowed(field, allowed) {
			return db
		}
		return db.Order(field + " " + direction)
	}
}

// Filter returns a GORM scope that applies WHERE conditions based on the page request filters.
// Only filter keys present in the allowed list are applied; others are silently ignored.
// Keys ending with "__like" produce a LIKE '%value%' condition; others use exact match.
func Filter(req domain.PageRequest, allowed []string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		for key, value := range req.Filter {
			field, like := strings.CutSuffix(key, "__like")
			if !validFieldName.MatchString(field) || !isAllowed(field, allowed) {
				continue
			}
			if like {
				db = db.Where(field+" LIKE ?", "%"+value+"%")
			} else {
				db = db.Where(field+" = ?", value)
			}
		}
		return db
	}
}

// NewPageResult creates a PageResult with computed TotalPages.
func NewPageResult[T any](items []T, total int64, req domain.PageRequest) *domain.PageResult[T] {
	totalPages := 0
	if req.PageSize > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(req.PageSize)))
	}

	if items == nil {
		items = []T{}
	}

	return &domain.PageResult[T]{
		Items:      items,
		Total:      total,
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalPages: totalPages,
	}
}

// parseSort splits "field:direction" and validates both parts.
func parseSort(sort string) (field, direction string, ok bool) {
	field, direction, found := strings.Cut(sort, ":")
	if !found {
		return "", "", false
	}
	field = strings.TrimSpace(field)
	direction = strings.ToLower(strings.TrimSpace(direction))
	if direction != "asc" && direction != "desc" {
		return "", "", false
	}
	if !validFieldName.MatchString(field) {
		return "", "", false
	}
	return field, direction, true
}

func sortApplies(sort string, allowed []string) bool {
	field, _, ok := parseSort(sort)
	return ok && isAllowed(field, allowed)
}

// isAllowed checks if a field name is in the allowed list.
func isAllowed(field string, allowed []string) bool {
	return slices.Contains(allowed, field)
}
