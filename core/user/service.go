package user

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
)

var (
	// errors
	ErrNotFound       = errors.New("user not found")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
)

var nowFunc = time.Now // mockable

// Service manages admin accounts, stored in the `users` collection.
type Service struct {
	store core.DocumentStore
}

func NewService(store core.DocumentStore) *Service {
	return &Service{store: store}
}

func (svc *Service) all(ctx context.Context) ([]User, error) {
	docs, err := svc.store.List(ctx, core.UsersCollection)
	if err != nil {
		return nil, errors.Wrap(err, "listing users")
	}
	users := make([]User, 0, len(docs))
	for _, d := range docs {
		var doc document
		if err := d.Decode(&doc); err != nil {
			return nil, err
		}
		users = append(users, doc.user())
	}
	return users, nil
}

func (svc *Service) save(ctx context.Context, usr User) error {
	return svc.store.Set(ctx, core.UsersCollection, usr.ID, document{User: usr, PasswordHash: usr.PasswordHash})
}

// CheckUniqueness returns a *core.ValidationError if the username or email is taken by another user.
func (svc *Service) CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error {
	users, err := svc.all(ctx)
	if err != nil {
		return err
	}
	excluded := make(map[string]bool, len(exclUsers))
	for _, u := range exclUsers {
		excluded[u.ID] = true
	}
	for _, u := range users {
		if excluded[u.ID] {
			continue
		}
		var exErr error
		var field string
		switch {
		case uname != "" && u.Username == uname:
			exErr, field = ErrUsernameExists, "username"
		case email != "" && u.Email == email:
			exErr, field = ErrEmailExists, "email"
		default:
			continue
		}
		return core.NewValidationError(exErr, core.FieldError{Field: field, Error: exErr.Error()})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	if err := svc.CheckUniqueness(ctx, nu.Username, nu.Email); err != nil {
		return User{}, err
	}
	now := nowFunc().UTC()
	usr := User{
		ID:        uuid.New().String(),
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		IsActive:  true,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, err
	}
	if err := svc.store.Create(ctx, core.UsersCollection, usr.ID, document{User: usr, PasswordHash: usr.PasswordHash}); err != nil {
		return User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

// Query returns the users matching filter, ordered by name unless orderings are given.
func (svc *Service) Query(ctx context.Context, filter QueryFilter, orderings []core.Ordering) ([]User, error) {
	users, err := svc.all(ctx)
	if err != nil {
		return nil, err
	}
	res := make([]User, 0, len(users))
	for _, u := range users {
		if filter.match(u) {
			res = append(res, u)
		}
	}
	if len(orderings) == 0 {
		orderings = []core.Ordering{{Field: "name", Ascending: true}}
	}
	sort.SliceStable(res, func(i, j int) bool {
		for _, ord := range orderings {
			a, b := sortKey(res[i], ord.Field), sortKey(res[j], ord.Field)
			if a == b {
				continue
			}
			if ord.Ascending {
				return a < b
			}
			return a > b
		}
		return false
	})
	return res, nil
}

func sortKey(u User, field string) string {
	switch field {
	case "username":
		return u.Username
	case "email":
		return u.Email
	case "createdAt":
		return u.CreatedAt.Format(time.RFC3339Nano)
	case "lastLogin":
		return u.LastLogin.Format(time.RFC3339Nano)
	default:
		return strings.ToLower(u.Name)
	}
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	var doc document
	if err := svc.store.Get(ctx, core.UsersCollection, id, &doc); err != nil {
		if errors.Cause(err) == core.ErrDocNotFound {
			return User{}, ErrNotFound
		}
		return User{}, errors.Wrap(err, "getting user")
	}
	return doc.user(), nil
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	uname = core.CleanString(uname, true /* lower */)
	if uname == "" {
		return User{}, ErrNotFound
	}
	users, err := svc.all(ctx)
	if err != nil {
		return User{}, err
	}
	for _, u := range users {
		if u.Username == uname || u.Email == uname {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (svc *Service) Update(ctx context.Context, id string, uu UpdateUser) (User, error) {
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if err := svc.CheckUniqueness(ctx, uu.Username, uu.Email, usr); err != nil {
		return User{}, err
	}
	usr.Name = uu.Name
	usr.Username = uu.Username
	usr.Email = uu.Email
	usr.Roles = uu.Roles
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, err
		}
	}
	usr.UpdatedAt = nowFunc().UTC()
	if err := svc.save(ctx, usr); err != nil {
		return User{}, errors.Wrap(err, "updating user")
	}
	return usr, nil
}

// SetPassword replaces the password of the user identified by username or email.
func (svc *Service) SetPassword(ctx context.Context, uname, pwd string) (User, error) {
	usr, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return User{}, err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, err
	}
	usr.UpdatedAt = nowFunc().UTC()
	if err := svc.save(ctx, usr); err != nil {
		return User{}, errors.Wrap(err, "saving password")
	}
	return usr, nil
}

// UpdateOrCreate saves usr, assigning it an ID and creation time when new.
func (svc *Service) UpdateOrCreate(ctx context.Context, usr User) (User, error) {
	now := nowFunc().UTC()
	if usr.ID == "" {
		usr.ID = uuid.New().String()
		usr.CreatedAt = now
	}
	usr.UpdatedAt = now
	if err := svc.save(ctx, usr); err != nil {
		return User{}, errors.Wrap(err, "saving user")
	}
	return usr, nil
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = nowFunc().UTC()
	err := svc.store.Update(ctx, core.UsersCollection, usr.ID, map[string]interface{}{"lastLogin": usr.LastLogin})
	if err != nil {
		if errors.Cause(err) == core.ErrDocNotFound {
			return User{}, ErrNotFound
		}
		return User{}, errors.Wrap(err, "setting last login")
	}
	return usr, nil
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		if err := svc.store.Delete(ctx, core.UsersCollection, id); err != nil {
			return errors.Wrap(err, "deleting user")
		}
	}
	return nil
}
