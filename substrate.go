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

package substrate

import (
	"context"
	"fmt"
	"sync"

	"github.com/mallardlabs/substrate/database"
	"github.com/mallardlabs/substrate/repository"
	"github.com/mallardlabs/substrate/types"
)

type Service[T any, V any] interface {
	// Get returns a single view by document id, or nil when absent.
	Get(ctx context.Context, id string) (*V, error)

	// GetMany returns a lookup map of views for the given ids; missing ids
	// are simply absent.
	GetMany(ctx context.Context, ids []string) (map[string]V, error)

	// List returns views that match the provided filter.
	List(ctx context.Context, filter types.FilterSpec, limit int64) ([]V, error)

	// Page returns a paginated list of views.
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[V], error)

	// Count returns the number of active documents matching the filter.
	Count(ctx context.Context, filter types.FilterSpec) (int64, error)

	// Save inserts a new document and returns its view.
	Save(ctx context.Context, model *T) (*V, error)

	// SaveMany inserts documents as an unordered batch.
	SaveMany(ctx context.Context, models []*T) (*types.BulkResult[V], error)

	// Update applies a partial update and returns the post-update view.
	Update(ctx context.Context, id string, update types.UpdateSpec) (*V, error)

	// Delete soft-deletes the document; a no-op on already-deleted ids.
	Delete(ctx context.Context, id string) (*V, error)

	// Erase permanently removes the document.
	Erase(ctx context.Context, id string) (bool, error)

	// WithTransaction runs fn inside a transaction when the deployment
	// supports one, and plainly otherwise.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Repository returns the underlying repository for advanced use cases.
	Repository() (repository.Repository[T, V], error)
}

type baseServiceImpl[T any, PT repository.EntityPtr[T], V any] struct {
	collection string
	mapper     repository.Mapper[T, V]
	once       sync.Once
	repo       repository.Repository[T, V]
	err        error
}

// NewService returns a Service implementation using the generic repository
// backed by the global database connection. The repository binds lazily on
// first use, so services can be constructed before InitDB.
func NewService[T any, PT repository.EntityPtr[T], V any](collection string, mapper repository.Mapper[T, V]) Service[T, V] {
	return &baseServiceImpl[T, PT, V]{collection: collection, mapper: mapper}
}

func (s *baseServiceImpl[T, PT, V]) baseRepo() (repository.Repository[T, V], error) {
	s.once.Do(func() {
		db := database.GetDatabase()
		if db == nil {
			s.err = fmt.Errorf("database not initialized")
			return
		}
		s.repo, s.err = repository.NewRepository[T, PT, V](db, s.collection, s.mapper)
	})
	return s.repo, s.err
}

func (s *baseServiceImpl[T, PT, V]) Get(ctx context.Context, id string) (*V, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.FindByID(ctx, id)
}

func (s *baseServiceImpl[T, PT, V]) GetMany(ctx context.Context, ids []string) (map[string]V, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.FindByIDs(ctx, ids)
}

func (s *baseServiceImpl[T, PT, V]) List(ctx context.Context, filter types.FilterSpec, limit int64) ([]V, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.FindMany(ctx, filter, limit)
}

func (s *baseServiceImpl[T, PT, V]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[V], error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.Page(ctx, page)
}

func (s *baseServiceImpl[T, PT, V]) Count(ctx context.Context, filter types.FilterSpec) (int64, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return 0, err
	}
	return repo.Count(ctx, filter)
}

func (s *baseServiceImpl[T, PT, V]) Save(ctx context.Context, model *T) (*V, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.Create(ctx, model)
}

func (s *baseServiceImpl[T, PT, V]) SaveMany(ctx context.Context, models []*T) (*types.BulkResult[V], error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.CreateMany(ctx, models)
}

func (s *baseServiceImpl[T, PT, V]) Update(ctx context.Context, id string, update types.UpdateSpec) (*V, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.UpdateByID(ctx, id, update)
}

func (s *baseServiceImpl[T, PT, V]) Delete(ctx context.Context, id string) (*V, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return nil, err
	}
	return repo.SoftDelete(ctx, id)
}

func (s *baseServiceImpl[T, PT, V]) Erase(ctx context.Context, id string) (bool, error) {
	repo, err := s.baseRepo()
	if err != nil {
		return false, err
	}
	return repo.HardDelete(ctx, id)
}

func (s *baseServiceImpl[T, PT, V]) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	manager := database.GetDatabaseManager()
	if manager == nil {
		return fmt.Errorf("database not initialized")
	}
	return manager.WithTransaction(ctx, fn)
}

func (s *baseServiceImpl[T, PT, V]) Repository() (repository.Repository[T, V], error) {
	return s.baseRepo()
}

// ScopedService is the surface application services consume for tenant-owned
// collections. Every read and delete requires an explicit scope; the only way
// around it is the Admin accessor.
type ScopedService[T any, V any] interface {
	// Save inserts a new document and returns its view. The caller is
	// responsible for populating the scope field before saving.
	Save(ctx context.Context, model *T) (*V, error)

	// GetForScope returns the view by id only when the document belongs to
	// scope, or nil otherwise.
	GetForScope(ctx context.Context, scope, id string) (*V, error)

	// ListForScope returns views matching the filter within scope.
	ListForScope(ctx context.Context, scope string, filter types.FilterSpec, limit int64) ([]V, error)

	// CountForScope returns the number of active documents within scope.
	CountForScope(ctx context.Context, scope string, filter types.FilterSpec) (int64, error)

	// RemoveForScope soft-deletes the document only when it belongs to scope.
	RemoveForScope(ctx context.Context, scope, id string) (*V, error)

	// WithTransaction runs fn inside a transaction when the deployment
	// supports one, and plainly otherwise.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Admin returns the unscoped repository for cross-scope maintenance.
	Admin() (repository.Repository[T, V], error)
}

type scopedServiceImpl[T any, PT repository.EntityPtr[T], V any] struct {
	collection string
	scopeField string
	mapper     repository.Mapper[T, V]
	once       sync.Once
	repo       repository.ScopeSafeRepository[T, V]
	err        error
}

// NewScopedService returns a ScopedService bound lazily to the global
// database connection. An empty scopeField selects the default.
func NewScopedService[T any, PT repository.EntityPtr[T], V any](collection, scopeField string, mapper repository.Mapper[T, V]) ScopedService[T, V] {
	return &scopedServiceImpl[T, PT, V]{collection: collection, scopeField: scopeField, mapper: mapper}
}

func (s *scopedServiceImpl[T, PT, V]) scopedRepo() (repository.ScopeSafeRepository[T, V], error) {
	s.once.Do(func() {
		db := database.GetDatabase()
		if db == nil {
			s.err = fmt.Errorf("database not initialized")
			return
		}
		s.repo, s.err = repository.NewStrictScopedRepository[T, PT, V](db, s.collection, s.scopeField, s.mapper)
	})
	return s.repo, s.err
}

func (s *scopedServiceImpl[T, PT, V]) Save(ctx context.Context, model *T) (*V, error) {
	repo, err := s.scopedRepo()
	if err != nil {
		return nil, err
	}
	return repo.Create(ctx, model)
}

func (s *scopedServiceImpl[T, PT, V]) GetForScope(ctx context.Context, scope, id string) (*V, error) {
	repo, err := s.scopedRepo()
	if err != nil {
		return nil, err
	}
	return repo.FindByIDForScope(ctx, id, scope)
}

func (s *scopedServiceImpl[T, PT, V]) ListForScope(ctx context.Context, scope string, filter types.FilterSpec, limit int64) ([]V, error) {
	repo, err := s.scopedRepo()
	if err != nil {
		return nil, err
	}
	return repo.FindManyForScope(ctx, scope, filter, limit)
}

func (s *scopedServiceImpl[T, PT, V]) CountForScope(ctx context.Context, scope string, filter types.FilterSpec) (int64, error) {
	repo, err := s.scopedRepo()
	if err != nil {
		return 0, err
	}
	return repo.CountByScope(ctx, scope, filter)
}

func (s *scopedServiceImpl[T, PT, V]) RemoveForScope(ctx context.Context, scope, id string) (*V, error) {
	repo, err := s.scopedRepo()
	if err != nil {
		return nil, err
	}
	return repo.SoftDeleteByScope(ctx, id, scope)
}

func (s *scopedServiceImpl[T, PT, V]) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	manager := database.GetDatabaseManager()
	if manager == nil {
		return fmt.Errorf("database not initialized")
	}
	return manager.WithTransaction(ctx, fn)
}

func (s *scopedServiceImpl[T, PT, V]) Admin() (repository.Repository[T, V], error) {
	repo, err := s.scopedRepo()
	if err != nil {
		return nil, err
	}
	return repo.UnscopedAdmin(), nil
}
