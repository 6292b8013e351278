/*
 * Copyright 2025 mallardlabs.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package types

import (
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// PageRequest describes pagination, an optional filter, and ordering.
// Orders use the "field ASC" / "field DESC" form.
type PageRequest struct {
	page     int
	pageSize int
	filter   FilterSpec
	orders   []string
}

func (p *PageRequest) GetPageSize() int {
	if p.pageSize < 1 {
		p.pageSize = 10
	}
	return p.pageSize
}

func (p *PageRequest) GetPage() int {
	if p.page < 1 {
		p.page = 1
	}
	return p.page
}

func (p *PageRequest) GetOffset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

func (p *PageRequest) GetFilter() FilterSpec {
	return p.filter
}

// SortDoc converts the order clauses into the wire sort document. Unknown
// directions default to ascending.
func (p *PageRequest) SortDoc() bson.D {
	sort := bson.D{}
	for _, order := range p.orders {
		parts := strings.Fields(order)
		if len(parts) == 0 {
			continue
		}
		dir := 1
		if len(parts) > 1 && strings.EqualFold(parts[1], "DESC") {
			dir = -1
		}
		sort = append(sort, bson.E{Key: parts[0], Value: dir})
	}
	return sort
}

// NewPageRequest constructs a PageRequest with filter and order settings.
func NewPageRequest(page int, pageSize int, filter FilterSpec, orders []string) *PageRequest {
	return &PageRequest{page, pageSize, filter, orders}
}

// NewPageRequestWithFilter constructs a PageRequest with a filter only.
func NewPageRequestWithFilter(page int, pageSize int, filter FilterSpec) *PageRequest {
	return NewPageRequest(page, pageSize, filter, make([]string, 0))
}

// NewPageRequestWithOrders constructs a PageRequest with ordering only.
func NewPageRequestWithOrders(page int, pageSize int, orders []string) *PageRequest {
	return NewPageRequest(page, pageSize, nil, orders)
}

// NewDefaultPageRequest constructs a PageRequest with no filter or ordering.
func NewDefaultPageRequest(page int, pageSize int) *PageRequest {
	return NewPageRequest(page, pageSize, nil, make([]string, 0))
}

// Pagination holds paged result views along with pagination metadata.
type Pagination[V any] struct {
	Page     int
	PageSize int
	Total    int64
	Items    []V
}

// NewDefaultPagination constructs an empty pagination container.
func NewDefaultPagination[V any](page int, pageSize int) *Pagination[V] {
	return &Pagination[V]{page, pageSize, 0, make([]V, 0)}
}
