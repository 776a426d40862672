// Package memstore is an in-memory store.Store with the same semantics as
// the MongoDB implementation. It backs unit tests and STORE_BACKEND=memory.
package memstore

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/raushankrgupta/nima-backend/models"
	"github.com/raushankrgupta/nima-backend/store"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Store struct {
	mu         sync.Mutex
	users      map[primitive.ObjectID]models.User
	userImages map[primitive.ObjectID]models.UserImage
	items      map[primitive.ObjectID]models.Item
	looks      map[primitive.ObjectID]models.Look
	lookImages map[primitive.ObjectID]models.LookImage // keyed by look id
	tryOns     map[primitive.ObjectID]models.ItemTryOn
	runs       map[string]models.WorkflowRun
	steps      map[string]models.WorkflowStep // keyed by workflow id + "/" + name
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:      make(map[primitive.ObjectID]models.User),
		userImages: make(map[primitive.ObjectID]models.UserImage),
		items:      make(map[primitive.ObjectID]models.Item),
		looks:      make(map[primitive.ObjectID]models.Look),
		lookImages: make(map[primitive.ObjectID]models.LookImage),
		tryOns:     make(map[primitive.ObjectID]models.ItemTryOn),
		runs:       make(map[string]models.WorkflowRun),
		steps:      make(map[string]models.WorkflowStep),
	}
}

func (s *Store) Users() store.UserRepository           { return (*userRepo)(s) }
func (s *Store) UserImages() store.UserImageRepository { return (*userImageRepo)(s) }
func (s *Store) Items() store.ItemRepository           { return (*itemRepo)(s) }
func (s *Store) Looks() store.LookRepository           { return (*lookRepo)(s) }
func (s *Store) LookImages() store.LookImageRepository { return (*lookImageRepo)(s) }
func (s *Store) TryOns() store.TryOnRepository         { return (*tryOnRepo)(s) }
func (s *Store) Workflows() store.WorkflowRepository   { return (*workflowRepo)(s) }
func (s *Store) Close(context.Context) error           { return nil }

func newID(id primitive.ObjectID) primitive.ObjectID {
	if id.IsZero() {
		return primitive.NewObjectID()
	}
	return id
}

// users

type userRepo Store

func (r *userRepo) Create(_ context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return store.ErrDuplicate
		}
	}
	u.ID = newID(u.ID)
	r.users[u.ID] = *u
	return nil
}

func (r *userRepo) GetByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *userRepo) UpdateProfile(_ context.Context, id primitive.ObjectID, p store.ProfileUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Gender != nil {
		u.Gender = *p.Gender
	}
	if p.StylePreferences != nil {
		u.StylePreferences = append([]string(nil), p.StylePreferences...)
	}
	if p.BudgetMin != nil {
		u.BudgetMin = *p.BudgetMin
	}
	if p.BudgetMax != nil {
		u.BudgetMax = *p.BudgetMax
	}
	u.UpdatedAt = time.Now()
	r.users[id] = u
	return nil
}

func (r *userRepo) CompareAndSwapCredits(_ context.Context, id primitive.ObjectID, expected, next models.Credits) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if !creditsEqual(u.Credits, expected) {
		return false, nil
	}
	u.Credits = next
	u.UpdatedAt = time.Now()
	r.users[id] = u
	return true, nil
}

func creditsEqual(a, b models.Credits) bool {
	return a.FreeRemaining == b.FreeRemaining &&
		a.FreePerWeek == b.FreePerWeek &&
		a.Purchased == b.Purchased &&
		a.NextResetAt.Equal(b.NextResetAt)
}

// user images

type userImageRepo Store

func (r *userImageRepo) Create(_ context.Context, img *models.UserImage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	img.ID = newID(img.ID)
	r.userImages[img.ID] = *img
	return nil
}

func (r *userImageRepo) ListByUser(_ context.Context, userID primitive.ObjectID) ([]models.UserImage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.UserImage
	for _, img := range r.userImages {
		if img.UserID == userID {
			out = append(out, img)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *userImageRepo) CountByUser(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	imgs, err := r.ListByUser(ctx, userID)
	return int64(len(imgs)), err
}

func (r *userImageRepo) GetPrimary(_ context.Context, userID primitive.ObjectID) (*models.UserImage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, img := range r.userImages {
		if img.UserID == userID && img.IsPrimary {
			return &img, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *userImageRepo) SetPrimary(_ context.Context, userID, imageID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	target, ok := r.userImages[imageID]
	if !ok || target.UserID != userID {
		return store.ErrNotFound
	}
	for id, img := range r.userImages {
		if img.UserID == userID && img.IsPrimary {
			img.IsPrimary = false
			r.userImages[id] = img
		}
	}
	target.IsPrimary = true
	r.userImages[imageID] = target
	return nil
}

// items

type itemRepo Store

func (r *itemRepo) Create(_ context.Context, item *models.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item.ID = newID(item.ID)
	r.items[item.ID] = *item
	return nil
}

func (r *itemRepo) UpsertBySourceURL(_ context.Context, item *models.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, existing := range r.items {
		if item.SourceURL != "" && existing.SourceURL == item.SourceURL {
			item.ID = id
			item.CreatedAt = existing.CreatedAt
			r.items[id] = *item
			return nil
		}
	}
	item.ID = newID(item.ID)
	r.items[item.ID] = *item
	return nil
}

func (r *itemRepo) GetByID(_ context.Context, id primitive.ObjectID) (*models.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &item, nil
}

func (r *itemRepo) GetMany(_ context.Context, ids []primitive.ObjectID) ([]models.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Item
	for _, id := range ids {
		if item, ok := r.items[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (r *itemRepo) filter(f store.ItemFilter) []models.Item {
	excluded := make(map[primitive.ObjectID]bool, len(f.ExcludeIDs))
	for _, id := range f.ExcludeIDs {
		excluded[id] = true
	}
	terms := strings.Fields(strings.ToLower(f.Query))

	var out []models.Item
	for _, item := range r.items {
		if excluded[item.ID] || (f.ActiveOnly && !item.Active) {
			continue
		}
		if f.Gender != "" && item.Gender != f.Gender && item.Gender != models.GenderUnisex {
			continue
		}
		if f.Category != "" && !strings.EqualFold(item.Category, f.Category) {
			continue
		}
		if len(terms) > 0 && !matchesAny(strings.ToLower(item.Name), terms) {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.Hex() < out[j].ID.Hex() })
	return out
}

func matchesAny(name string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(name, t) {
			return true
		}
	}
	return false
}

func (r *itemRepo) List(_ context.Context, f store.ItemFilter) ([]models.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return page(r.filter(f), f.Skip, f.Limit), nil
}

func (r *itemRepo) Count(_ context.Context, f store.ItemFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.filter(f))), nil
}

func page[T any](all []T, skip, limit int64) []T {
	if skip >= int64(len(all)) {
		return nil
	}
	all = all[skip:]
	if limit > 0 && limit < int64(len(all)) {
		all = all[:limit]
	}
	return all
}

// looks

type lookRepo Store

func (r *lookRepo) Create(_ context.Context, l *models.Look) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.looks {
		if l.WorkflowID != "" && existing.WorkflowID == l.WorkflowID && existing.BatchIndex == l.BatchIndex {
			return store.ErrDuplicate
		}
	}
	l.ID = newID(l.ID)
	r.looks[l.ID] = *l
	return nil
}

func (r *lookRepo) GetByID(_ context.Context, id primitive.ObjectID) (*models.Look, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.looks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &l, nil
}

func (r *lookRepo) GetByWorkflowBatch(_ context.Context, workflowID string, batchIndex int) (*models.Look, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.looks {
		if l.WorkflowID == workflowID && l.BatchIndex == batchIndex {
			return &l, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *lookRepo) ListByUser(_ context.Context, userID primitive.ObjectID, skip, limit int64) ([]models.Look, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Look
	for _, l := range r.looks {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.Hex() > out[j].ID.Hex()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, skip, limit), nil
}

func (r *lookRepo) CountByStatus(_ context.Context, userID primitive.ObjectID) (store.StatusCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := store.StatusCounts{}
	for _, l := range r.looks {
		if l.UserID == userID {
			counts[l.GenerationStatus]++
		}
	}
	return counts, nil
}

func (r *lookRepo) ItemIDsByUser(_ context.Context, userID primitive.ObjectID) ([]primitive.ObjectID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[primitive.ObjectID]bool)
	var out []primitive.ObjectID
	for _, l := range r.looks {
		if l.UserID != userID {
			continue
		}
		for _, id := range l.ItemIDs {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out, nil
}

func (r *lookRepo) UpdateStatus(_ context.Context, id primitive.ObjectID, status, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.looks[id]
	if !ok {
		return store.ErrNotFound
	}
	l.GenerationStatus = status
	l.ErrorMessage = errMsg
	l.UpdatedAt = time.Now()
	r.looks[id] = l
	return nil
}

// look images

type lookImageRepo Store

func (r *lookImageRepo) Save(_ context.Context, img *models.LookImage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.lookImages[img.LookID]; ok {
		img.ID = existing.ID
		img.CreatedAt = existing.CreatedAt
	}
	img.ID = newID(img.ID)
	r.lookImages[img.LookID] = *img
	return nil
}

func (r *lookImageRepo) GetByLook(_ context.Context, lookID primitive.ObjectID) (*models.LookImage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	img, ok := r.lookImages[lookID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &img, nil
}

// try-ons

type tryOnRepo Store

func (r *tryOnRepo) Create(_ context.Context, t *models.ItemTryOn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tryOns {
		if existing.ItemID == t.ItemID && existing.UserID == t.UserID {
			return store.ErrDuplicate
		}
	}
	t.ID = newID(t.ID)
	r.tryOns[t.ID] = *t
	return nil
}

func (r *tryOnRepo) GetByID(_ context.Context, id primitive.ObjectID) (*models.ItemTryOn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tryOns[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (r *tryOnRepo) ListByStatus(_ context.Context, statuses ...string) ([]models.ItemTryOn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ItemTryOn
	for _, t := range r.tryOns {
		if slices.Contains(statuses, t.Status) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *tryOnRepo) GetByItemUser(_ context.Context, itemID, userID primitive.ObjectID) (*models.ItemTryOn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tryOns {
		if t.ItemID == itemID && t.UserID == userID {
			return &t, nil
		}
	}
	return nil, store.ErrNotFound
}

func (r *tryOnRepo) Update(_ context.Context, t *models.ItemTryOn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tryOns[t.ID]; !ok {
		return store.ErrNotFound
	}
	r.tryOns[t.ID] = *t
	return nil
}

// workflows

type workflowRepo Store

func (r *workflowRepo) CreateRun(_ context.Context, run *models.WorkflowRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[run.ID]; ok {
		return store.ErrDuplicate
	}
	r.runs[run.ID] = *run
	return nil
}

func (r *workflowRepo) GetRun(_ context.Context, id string) (*models.WorkflowRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &run, nil
}

func (r *workflowRepo) UpdateRun(_ context.Context, run *models.WorkflowRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[run.ID]; !ok {
		return store.ErrNotFound
	}
	r.runs[run.ID] = *run
	return nil
}

func (r *workflowRepo) ListRunsByStatus(_ context.Context, status string) ([]models.WorkflowRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.WorkflowRun
	for _, run := range r.runs {
		if run.Status == status {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *workflowRepo) CountRunning(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, run := range r.runs {
		if run.UserID == userID && run.Status == models.RunRunning {
			n++
		}
	}
	return n, nil
}

func stepKey(workflowID, name string) string { return workflowID + "/" + name }

func (r *workflowRepo) GetStep(_ context.Context, workflowID, name string) (*models.WorkflowStep, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.steps[stepKey(workflowID, name)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (r *workflowRepo) SaveStep(_ context.Context, s *models.WorkflowStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := stepKey(s.WorkflowID, s.Name)
	if existing, ok := r.steps[key]; ok {
		s.CreatedAt = existing.CreatedAt
	}
	r.steps[key] = *s
	return nil
}

func (r *workflowRepo) ListSteps(_ context.Context, workflowID string) ([]models.WorkflowStep, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.WorkflowStep
	for _, s := range r.steps {
		if s.WorkflowID == workflowID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
